package configdoc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/davidahmann/infraweave-panel/internal/httpx"
)

// EntityWriter creates or updates a catalog entity from an OpenAPI document.
type EntityWriter interface {
	WriteEntity(ctx context.Context, document string) error
}

// HTTPEntityWriter posts the document to the catalog's open-api endpoint.
type HTTPEntityWriter struct {
	HTTP       *http.Client
	APIBaseURL func() string
}

func (w *HTTPEntityWriter) WriteEntity(ctx context.Context, document string) error {
	base := ""
	if w.APIBaseURL != nil {
		base = w.APIBaseURL()
	}
	if base == "" {
		return fmt.Errorf("write entity: host api base url is not known yet")
	}
	endpoint := httpx.JoinURL(base, "/open-api")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(document))
	if err != nil {
		return fmt.Errorf("write entity: %w", err)
	}
	req.Header.Set("Content-Type", "application/openapi;charset=UTF-8")
	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("write entity: %w", err)
	}
	defer resp.Body.Close()
	if !httpx.OK(resp.StatusCode) {
		return httpx.NewAPIError("Catalog", "/open-api", resp)
	}
	return nil
}

// Setup walks an operator through registering the configuration entity.
type Setup struct {
	HTTP   *http.Client
	Writer EntityWriter
	Logger *slog.Logger
}

// Create probes infraweaveURL and, only if it answers, writes the rendered
// configuration entity. It returns the document that was written.
func (s *Setup) Create(ctx context.Context, infraweaveURL string) (string, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := Probe(ctx, s.HTTP, infraweaveURL); err != nil {
		logger.Warn("infraweave url rejected", "url", infraweaveURL, "error", err)
		return "", err
	}
	doc, err := Render(infraweaveURL)
	if err != nil {
		return "", err
	}
	if _, err := Parse(doc); err != nil {
		return "", err
	}
	if s.Writer == nil {
		return "", fmt.Errorf("write entity: no entity writer configured")
	}
	if err := s.Writer.WriteEntity(ctx, doc); err != nil {
		return "", err
	}
	logger.Info("configuration entity written", "url", infraweaveURL)
	return doc, nil
}
