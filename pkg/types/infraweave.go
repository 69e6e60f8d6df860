package types

// Tracks a module or stack version can be published on.
const (
	TrackDev    = "dev"
	TrackAlpha  = "alpha"
	TrackBeta   = "beta"
	TrackStable = "stable"
)

// The Infraweave shapes below are how the CLI reads gateway output. The
// gateway passes Infraweave payloads through without decoding them.

type Project struct {
	ProjectID    string           `json:"project_id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Regions      []string         `json:"regions"`
	Repositories []RepositoryData `json:"repositories,omitempty"`
}

type RepositoryData struct {
	GitProvider    string `json:"git_provider"`
	GitURL         string `json:"git_url"`
	RepositoryPath string `json:"repository_path"`
	Type           string `json:"type"`
}

// Module describes one published version of a module. Stacks share the shape
// and carry StackData.
type Module struct {
	Module              string               `json:"module"`
	ModuleName          string               `json:"module_name"`
	ModuleType          string               `json:"module_type"`
	Track               string               `json:"track"`
	Version             string               `json:"version"`
	Description         string               `json:"description"`
	Reference           string               `json:"reference"`
	Timestamp           string               `json:"timestamp"`
	Manifest            ModuleManifest       `json:"manifest"`
	TFVariables         []TFVariable         `json:"tf_variables"`
	TFRequiredProviders []TFRequiredProvider `json:"tf_required_providers"`
	TFLockProviders     []TFLockProvider     `json:"tf_lock_providers"`
	TFOutputs           []TFOutput           `json:"tf_outputs"`
	StackData           *StackData           `json:"stack_data,omitempty"`
	VersionDiff         *VersionDiff         `json:"version_diff,omitempty"`
}

type ModuleManifest struct {
	Spec struct {
		Examples []ModuleExample `json:"examples"`
	} `json:"spec"`
}

type ModuleExample struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Variables   map[string]any `json:"variables"`
}

type TFVariable struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Default     any    `json:"default"`
	Description string `json:"description"`
	Nullable    bool   `json:"nullable"`
	Sensitive   bool   `json:"sensitive"`
}

type TFRequiredProvider struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Version string `json:"version"`
}

type TFLockProvider struct {
	Source  string `json:"source"`
	Version string `json:"version"`
}

type TFOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Sensitive   bool   `json:"sensitive"`
}

type StackData struct {
	Modules []StackModule `json:"modules"`
}

type StackModule struct {
	Module  string `json:"module"`
	Version string `json:"version"`
	S3Key   string `json:"s3_key"`
	Track   string `json:"track"`
}

type VersionDiff struct {
	Added []struct {
		Path  string `json:"path"`
		Value string `json:"value"`
	} `json:"added"`
	Changed []struct {
		Path     string `json:"path"`
		OldValue string `json:"old_value"`
		NewValue string `json:"new_value"`
	} `json:"changed"`
	Removed []struct {
		Path  string `json:"path"`
		Value string `json:"value"`
	} `json:"removed"`
	PreviousVersion string `json:"previous_version"`
}

// GroupedModule is the latest version of a module on each track.
type GroupedModule struct {
	Module        string `json:"module"`
	DevVersion    string `json:"dev_version"`
	AlphaVersion  string `json:"alpha_version"`
	BetaVersion   string `json:"beta_version"`
	StableVersion string `json:"stable_version"`
}

type Policy struct {
	Policy      string         `json:"policy"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Reference   string         `json:"reference"`
	Environment string         `json:"environment"`
	Timestamp   string         `json:"timestamp"`
	Data        map[string]any `json:"data"`
}

type PolicyResult struct {
	Policy      string `json:"policy"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Description string `json:"description"`
	PolicyName  string `json:"policy_name"`
	Failed      bool   `json:"failed"`
	Violations  any    `json:"violations"`
}

type DeploymentRef struct {
	Environment  string `json:"environment"`
	DeploymentID string `json:"deployment_id"`
}

type DriftDetection struct {
	Enabled       bool   `json:"enabled"`
	Interval      string `json:"interval"`
	AutoRemediate bool   `json:"auto_remediate"`
}

type Deployment struct {
	DeploymentID        string          `json:"deployment_id"`
	Status              string          `json:"status"`
	ProjectID           string          `json:"project_id"`
	Region              string          `json:"region"`
	Environment         string          `json:"environment"`
	Module              string          `json:"module"`
	DriftDetection      DriftDetection  `json:"drift_detection"`
	NextDriftCheckEpoch float64         `json:"next_drift_check_epoch"`
	InitiatedBy         string          `json:"initiated_by"`
	Epoch               float64         `json:"epoch"`
	JobID               string          `json:"job_id"`
	ModuleVersion       string          `json:"module_version"`
	ModuleType          string          `json:"module_type"`
	ModuleTrack         string          `json:"module_track"`
	Variables           map[string]any  `json:"variables"`
	Dependencies        []DeploymentRef `json:"dependencies"`
	Dependants          []DeploymentRef `json:"dependants"`
	Reference           string          `json:"reference"`
	ErrorText           string          `json:"error_text"`
	Output              map[string]any  `json:"output"`
	HasDrifted          bool            `json:"has_drifted"`
	PolicyResults       []PolicyResult  `json:"policy_results"`
}

type Event struct {
	DeploymentID string  `json:"deployment_id"`
	Status       string  `json:"status"`
	Event        string  `json:"event"`
	Module       string  `json:"module"`
	JobID        string  `json:"job_id"`
	InitiatedBy  string  `json:"initiated_by"`
	Timestamp    string  `json:"timestamp"`
	Epoch        float64 `json:"epoch"`
}

type Log struct {
	Logs string `json:"logs"`
}

type ChangeRecord struct {
	Timestamp     string `json:"timestamp"`
	PlanStdOutput string `json:"plan_std_output"`
}
