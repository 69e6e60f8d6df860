package types

// MergeRequestOptions describes one proposed file change, opened as a GitHub
// pull request or a GitLab merge request.
type MergeRequestOptions struct {
	RepositoryPath string `json:"repository_path"`
	SourceBranch   string `json:"source_branch"`
	TargetBranch   string `json:"target_branch"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	FilePath       string `json:"file_path"`
	FileContent    string `json:"file_content"`
	CommitMessage  string `json:"commit_message"`
}

// MergeRequest is the result of opening a pull or merge request.
type MergeRequest struct {
	WebURL string `json:"web_url"`
	RunID  string `json:"run_id,omitempty"`
}
