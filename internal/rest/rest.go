// Package rest is the request contract shared by the Infraweave, GitHub and
// GitLab clients: configuration preconditions, URL joining, JSON bodies and
// APIError on non-2xx.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/httpx"
)

var (
	ErrConfigLoading = errors.New("backend config is loading")
	ErrConfigFailed  = errors.New("backend config failed to load")
	ErrNotConfigured = errors.New("backend base url is not configured")
)

// ConfigError is returned when a call is attempted before the backend
// configuration allows it. It matches one of the sentinels above and, for a
// failed load, the load error itself.
type ConfigError struct {
	Backend string
	Reason  error
	Cause   error
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func (e *ConfigError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}

// Messages are the user-facing precondition messages of one backend.
type Messages struct {
	Loading string
	// Failed is a format string taking the load error message.
	Failed        string
	NotConfigured string
}

// DefaultMessages is the wording used by the GitHub and GitLab clients.
func DefaultMessages(backend string) Messages {
	return Messages{
		Loading:       backend + " API config is loading.",
		Failed:        backend + " API config error: %s",
		NotConfigured: backend + " base URL is not configured.",
	}
}

// StateSource hands out configuration snapshots; *backend.Context is one.
type StateSource interface {
	Snapshot() backend.State
}

type Client struct {
	Name     string
	Messages Messages
	Source   StateSource
	// BaseURL picks this backend's URL out of a ready configuration.
	BaseURL func(backend.Config) string
	HTTP    *http.Client
	Header  http.Header
	Logger  *slog.Logger
}

// Base checks the preconditions, in order loading, error, missing URL, and
// returns the configured base URL.
func (c *Client) Base() (string, error) {
	st := c.Source.Snapshot()
	switch st.Phase {
	case backend.PhaseReady:
	case backend.PhaseError:
		msg := "unknown error"
		if st.Err != nil {
			msg = st.Err.Error()
		}
		return "", &ConfigError{Backend: c.Name, Reason: ErrConfigFailed, Cause: st.Err, Message: fmt.Sprintf(c.Messages.Failed, msg)}
	default:
		return "", &ConfigError{Backend: c.Name, Reason: ErrConfigLoading, Message: c.Messages.Loading}
	}
	base := c.BaseURL(st.Config)
	if base == "" {
		return "", &ConfigError{Backend: c.Name, Reason: ErrNotConfigured, Message: c.Messages.NotConfigured}
	}
	return base, nil
}

// Do sends a JSON request to endpoint and decodes a JSON response into out
// when out is non-nil. No request is sent when a precondition fails.
func (c *Client) Do(ctx context.Context, method string, endpoint string, body any, out any) error {
	base, err := c.Base()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request body: %w", c.Name, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, httpx.JoinURL(base, endpoint), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.Name, err)
	}
	for key, values := range c.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s %s: %w", c.Name, method, endpoint, err)
	}
	defer resp.Body.Close()

	if !httpx.OK(resp.StatusCode) {
		apiErr := httpx.NewAPIError(c.Name, endpoint, resp)
		c.logger().Warn("upstream request failed",
			"backend", c.Name,
			"method", method,
			"endpoint", endpoint,
			"status", resp.StatusCode,
		)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response from %s: %w", c.Name, endpoint, err)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
