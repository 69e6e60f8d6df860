// Package infraweave is the read-only client for the Infraweave API.
package infraweave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/rest"
)

const BackendName = "Infraweave"

type Client struct {
	rest *rest.Client
}

func New(source rest.StateSource, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{rest: &rest.Client{
		Name: BackendName,
		Messages: rest.Messages{
			Loading:       "Infraweave API is still loading configuration.",
			Failed:        "Infraweave API configuration error: %s",
			NotConfigured: "Infraweave base URL is not configured.",
		},
		Source:  source,
		BaseURL: func(cfg backend.Config) string { return cfg.InfraweaveBaseURL },
		HTTP:    httpClient,
		Logger:  logger,
	}}
}

// endpoint joins escaped path segments onto a fixed prefix.
func endpoint(prefix string, segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, prefix)
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return strings.Join(escaped, "/")
}

// get returns the response body as received. Infraweave payloads are opaque
// to the gateway and are never reshaped on the way through.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.rest.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) list(ctx context.Context, path string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.rest.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Projects(ctx context.Context) ([]json.RawMessage, error) {
	return c.list(ctx, "/projects")
}

func (c *Client) Modules(ctx context.Context) ([]json.RawMessage, error) {
	return c.list(ctx, "/modules")
}

func (c *Client) ModuleVersions(ctx context.Context, track, name string) ([]json.RawMessage, error) {
	if err := c.required("track", track, "module", name); err != nil {
		return nil, err
	}
	return c.list(ctx, endpoint("/modules/versions", track, name))
}

func (c *Client) Module(ctx context.Context, track, name, version string) (json.RawMessage, error) {
	if err := c.required("track", track, "module", name, "version", version); err != nil {
		return nil, err
	}
	return c.get(ctx, endpoint("/module", track, name, version))
}

func (c *Client) Stacks(ctx context.Context) ([]json.RawMessage, error) {
	return c.list(ctx, "/stacks")
}

func (c *Client) Stack(ctx context.Context, track, name, version string) (json.RawMessage, error) {
	if err := c.required("track", track, "stack", name, "version", version); err != nil {
		return nil, err
	}
	return c.get(ctx, endpoint("/stack", track, name, version))
}

func (c *Client) Policies(ctx context.Context, env string) ([]json.RawMessage, error) {
	if err := c.required("environment", env); err != nil {
		return nil, err
	}
	return c.list(ctx, endpoint("/policies", env))
}

func (c *Client) Policy(ctx context.Context, env, name, version string) (json.RawMessage, error) {
	if err := c.required("environment", env, "policy", name, "version", version); err != nil {
		return nil, err
	}
	return c.get(ctx, endpoint("/policy", env, name, version))
}

func (c *Client) Deployments(ctx context.Context, project, region string) ([]json.RawMessage, error) {
	if err := c.required("project", project, "region", region); err != nil {
		return nil, err
	}
	return c.list(ctx, endpoint("/deployments", project, region))
}

func (c *Client) DeploymentsByModule(ctx context.Context, project, region, module string) ([]json.RawMessage, error) {
	if err := c.required("project", project, "region", region, "module", module); err != nil {
		return nil, err
	}
	return c.list(ctx, endpoint("/deployments/module", project, region, module))
}

func (c *Client) Deployment(ctx context.Context, project, region, env, id string) (json.RawMessage, error) {
	if err := c.required("project", project, "region", region, "environment", env, "deployment", id); err != nil {
		return nil, err
	}
	return c.get(ctx, endpoint("/deployment", project, region, env, id))
}

func (c *Client) Events(ctx context.Context, project, region, env, id string) ([]json.RawMessage, error) {
	if err := c.required("project", project, "region", region, "environment", env, "deployment", id); err != nil {
		return nil, err
	}
	return c.list(ctx, endpoint("/events", project, region, env, id))
}

func (c *Client) Logs(ctx context.Context, project, region, jobID string) (json.RawMessage, error) {
	if err := c.required("project", project, "region", region, "job", jobID); err != nil {
		return nil, err
	}
	return c.get(ctx, endpoint("/logs", project, region, jobID))
}

func (c *Client) ChangeRecord(ctx context.Context, project, region, env, deploymentID, jobID, changeType string) (json.RawMessage, error) {
	if err := c.required("project", project, "region", region, "environment", env,
		"deployment", deploymentID, "job", jobID, "change type", changeType); err != nil {
		return nil, err
	}
	return c.get(ctx, endpoint("/change_record", project, region, env, deploymentID, jobID, changeType))
}

// ErrMissingParameter is wrapped by every empty-argument error.
var ErrMissingParameter = errors.New("missing parameter")

// required reports the backend preconditions first, then the first empty
// argument of the name/value pairs.
func (c *Client) required(pairs ...string) error {
	if _, err := c.rest.Base(); err != nil {
		return err
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s", ErrMissingParameter, pairs[i])
		}
	}
	return nil
}
