// Package journal keeps a durable log of pull/merge request write runs and
// the steps each one applied.
package journal

import "errors"

const (
	KindGitHubPullRequest  = "github.pull_request"
	KindGitLabMergeRequest = "gitlab.merge_request"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var ErrMissingRunID = errors.New("missing run id")

// Run is one write run. Timestamps are RFC 3339 UTC strings.
type Run struct {
	RunID        string   `json:"run_id"`
	Kind         string   `json:"kind"`
	Repository   string   `json:"repository"`
	SourceBranch string   `json:"source_branch"`
	TargetBranch string   `json:"target_branch"`
	Status       string   `json:"status"`
	AppliedSteps []string `json:"applied_steps"`
	FailedStep   *string  `json:"failed_step,omitempty"`
	Error        *string  `json:"error,omitempty"`
	WebURL       *string  `json:"web_url,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

type Store interface {
	// PutRun inserts or replaces the run with the same RunID.
	PutRun(run Run) error
	GetRun(runID string) (Run, bool)
	// ListRuns returns the most recent runs first; limit <= 0 means a default page.
	ListRuns(limit int) ([]Run, error)
}

// DefaultListLimit applies when ListRuns is called without a limit.
const DefaultListLimit = 100
