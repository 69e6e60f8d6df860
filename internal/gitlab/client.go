// Package gitlab opens merge requests that add one file, through the GitLab
// REST API v4.
package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/journal"
	"github.com/davidahmann/infraweave-panel/internal/metrics"
	"github.com/davidahmann/infraweave-panel/internal/rest"
	"github.com/davidahmann/infraweave-panel/internal/saga"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

const BackendName = "GitLab"

const (
	StepCreateBranch     = "create_branch"
	StepCommitFile       = "commit_file"
	StepOpenMergeRequest = "open_merge_request"
)

type Options struct {
	// Token is sent as PRIVATE-TOKEN when set.
	Token   string
	Journal journal.Store
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

type Client struct {
	rest    *rest.Client
	journal journal.Store
	logger  *slog.Logger
	metrics *metrics.Collector
}

func New(source rest.StateSource, httpClient *http.Client, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("PRIVATE-TOKEN", opts.Token)
	}
	return &Client{
		rest: &rest.Client{
			Name:     BackendName,
			Messages: rest.DefaultMessages(BackendName),
			Source:   source,
			BaseURL:  func(cfg backend.Config) string { return cfg.GitLabBaseURL },
			HTTP:     httpClient,
			Header:   header,
			Logger:   logger,
		},
		journal: opts.Journal,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// encodeProjectID turns "group/sub/project" into the single path segment
// "group%2Fsub%2Fproject"; numeric IDs pass through unchanged.
func encodeProjectID(project string) string {
	return url.PathEscape(project)
}

func (c *Client) CreateBranch(ctx context.Context, project, branch, ref string) error {
	if err := c.rest.CheckBranch("branch", branch); err != nil {
		return err
	}
	body := map[string]string{"branch": branch, "ref": ref}
	return c.rest.Do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/repository/branches", encodeProjectID(project)), body, nil)
}

type commitAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type commitRequest struct {
	Branch        string         `json:"branch"`
	CommitMessage string         `json:"commit_message"`
	Actions       []commitAction `json:"actions"`
}

// CreateCommit commits content as a new file at filePath on branch.
func (c *Client) CreateCommit(ctx context.Context, project, branch, filePath, content, message string) error {
	if err := c.rest.CheckBranch("branch", branch); err != nil {
		return err
	}
	body := commitRequest{
		Branch:        branch,
		CommitMessage: message,
		Actions:       []commitAction{{Action: "create", FilePath: filePath, Content: content}},
	}
	return c.rest.Do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/repository/commits", encodeProjectID(project)), body, nil)
}

type mergeRequestResponse struct {
	IID    int    `json:"iid"`
	WebURL string `json:"web_url"`
}

func (c *Client) CreateMergeRequest(ctx context.Context, project, source, target, title, description string) (types.MergeRequest, error) {
	body := map[string]string{
		"source_branch": source,
		"target_branch": target,
		"title":         title,
		"description":   description,
	}
	var mr mergeRequestResponse
	if err := c.rest.Do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/merge_requests", encodeProjectID(project)), body, &mr); err != nil {
		return types.MergeRequest{}, err
	}
	if mr.WebURL == "" {
		return types.MergeRequest{WebURL: "unknown"}, nil
	}
	return types.MergeRequest{WebURL: mr.WebURL}, nil
}

// CreateMergeRequestWithFile creates the source branch from the target
// branch, commits the file to it and opens a merge request. Applied steps are
// left in place when a later step fails.
func (c *Client) CreateMergeRequestWithFile(ctx context.Context, opts types.MergeRequestOptions) (types.MergeRequest, error) {
	if _, err := c.rest.Base(); err != nil {
		return types.MergeRequest{}, err
	}
	if err := rest.ValidateMergeRequest(opts); err != nil {
		return types.MergeRequest{}, err
	}

	rec := journal.NewRecorder(c.journal, journal.KindGitLabMergeRequest, opts, c.logger, c.metrics)
	var result types.MergeRequest
	_, err := saga.Run(ctx, rec,
		saga.Step{Name: StepCreateBranch, Run: func(ctx context.Context) error {
			return c.CreateBranch(ctx, opts.RepositoryPath, opts.SourceBranch, opts.TargetBranch)
		}},
		saga.Step{Name: StepCommitFile, Run: func(ctx context.Context) error {
			return c.CreateCommit(ctx, opts.RepositoryPath, opts.SourceBranch, opts.FilePath, opts.FileContent, opts.CommitMessage)
		}},
		saga.Step{Name: StepOpenMergeRequest, Run: func(ctx context.Context) error {
			mr, err := c.CreateMergeRequest(ctx, opts.RepositoryPath, opts.SourceBranch, opts.TargetBranch, opts.Title, opts.Description)
			if err != nil {
				return err
			}
			result = mr
			rec.SetWebURL(mr.WebURL)
			return nil
		}},
	)
	if err != nil {
		return types.MergeRequest{RunID: rec.RunID()}, err
	}
	result.RunID = rec.RunID()
	return result, nil
}
