// Package github opens pull requests that add one file, through the GitHub
// REST API.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/oauth2"

	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/journal"
	"github.com/davidahmann/infraweave-panel/internal/metrics"
	"github.com/davidahmann/infraweave-panel/internal/rest"
	"github.com/davidahmann/infraweave-panel/internal/saga"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

const BackendName = "GitHub"

// Step names of CreatePullRequestWithFile, in order.
const (
	StepCreateBranch    = "create_branch"
	StepCommitFile      = "commit_file"
	StepOpenPullRequest = "open_pull_request"
)

type Options struct {
	// Token is sent as a bearer token when set.
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
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Token != "" {
		authed := *httpClient
		authed.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   httpClient.Transport,
		}
		httpClient = &authed
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rest: &rest.Client{
			Name:     BackendName,
			Messages: rest.DefaultMessages(BackendName),
			Source:   source,
			BaseURL:  func(cfg backend.Config) string { return cfg.GitHubBaseURL },
			HTTP:     httpClient,
			Header:   http.Header{"X-Github-Api-Version": []string{"2022-11-28"}},
			Logger:   logger,
		},
		journal: opts.Journal,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// escapePath escapes each segment of a slash-separated path, keeping the slashes.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// BranchSHA returns the commit SHA at the tip of branch.
func (c *Client) BranchSHA(ctx context.Context, repo, branch string) (string, error) {
	if err := c.rest.CheckBranch("branch", branch); err != nil {
		return "", err
	}
	var ref refResponse
	endpoint := fmt.Sprintf("/repos/%s/git/ref/heads/%s", escapePath(repo), escapePath(branch))
	if err := c.rest.Do(ctx, http.MethodGet, endpoint, nil, &ref); err != nil {
		return "", err
	}
	if !plumbing.IsHash(ref.Object.SHA) {
		return "", fmt.Errorf("GitHub returned an invalid sha %q for %s", ref.Object.SHA, branch)
	}
	return ref.Object.SHA, nil
}

// CreateBranch creates branch at the tip of fromRef.
func (c *Client) CreateBranch(ctx context.Context, repo, branch, fromRef string) error {
	if err := c.rest.CheckBranch("branch", branch); err != nil {
		return err
	}
	sha, err := c.BranchSHA(ctx, repo, fromRef)
	if err != nil {
		return err
	}
	body := map[string]string{
		"ref": plumbing.NewBranchReferenceName(branch).String(),
		"sha": sha,
	}
	return c.rest.Do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/git/refs", escapePath(repo)), body, nil)
}

// CreateCommit writes content to path on branch as a new file.
func (c *Client) CreateCommit(ctx context.Context, repo, branch, path, content, message string) error {
	if err := c.rest.CheckBranch("branch", branch); err != nil {
		return err
	}
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	endpoint := fmt.Sprintf("/repos/%s/contents/%s", escapePath(repo), escapePath(path))
	return c.rest.Do(ctx, http.MethodPut, endpoint, body, nil)
}

type pullResponse struct {
	HTMLURL string `json:"html_url"`
	Links   struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

func (p pullResponse) webURL() string {
	switch {
	case p.HTMLURL != "":
		return p.HTMLURL
	case p.Links.HTML.Href != "":
		return p.Links.HTML.Href
	default:
		return "unknown"
	}
}

func (c *Client) CreatePullRequest(ctx context.Context, repo, head, base, title, description string) (types.MergeRequest, error) {
	body := map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  description,
	}
	var pr pullResponse
	if err := c.rest.Do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/pulls", escapePath(repo)), body, &pr); err != nil {
		return types.MergeRequest{}, err
	}
	return types.MergeRequest{WebURL: pr.webURL()}, nil
}

// CreatePullRequestWithFile creates the source branch from the target branch,
// commits the file to it and opens a pull request. Steps are not rolled back;
// a failure leaves earlier steps applied and is journaled.
func (c *Client) CreatePullRequestWithFile(ctx context.Context, opts types.MergeRequestOptions) (types.MergeRequest, error) {
	if _, err := c.rest.Base(); err != nil {
		return types.MergeRequest{}, err
	}
	if err := rest.ValidateMergeRequest(opts); err != nil {
		return types.MergeRequest{}, err
	}

	rec := journal.NewRecorder(c.journal, journal.KindGitHubPullRequest, opts, c.logger, c.metrics)
	var result types.MergeRequest
	_, err := saga.Run(ctx, rec,
		saga.Step{Name: StepCreateBranch, Run: func(ctx context.Context) error {
			return c.CreateBranch(ctx, opts.RepositoryPath, opts.SourceBranch, opts.TargetBranch)
		}},
		saga.Step{Name: StepCommitFile, Run: func(ctx context.Context) error {
			return c.CreateCommit(ctx, opts.RepositoryPath, opts.SourceBranch, opts.FilePath, opts.FileContent, opts.CommitMessage)
		}},
		saga.Step{Name: StepOpenPullRequest, Run: func(ctx context.Context) error {
			pr, err := c.CreatePullRequest(ctx, opts.RepositoryPath, opts.SourceBranch, opts.TargetBranch, opts.Title, opts.Description)
			if err != nil {
				return err
			}
			result = pr
			rec.SetWebURL(pr.WebURL)
			return nil
		}},
	)
	result.RunID = rec.RunID()
	if err != nil {
		return types.MergeRequest{RunID: result.RunID}, err
	}
	return result, nil
}
