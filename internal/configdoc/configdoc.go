// Package configdoc builds, validates and stores the OpenAPI-shaped document
// that registers the panel's configuration entity in the catalog.
package configdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/httpx"
)

// PlaceholderURL is rendered when no Infraweave URL has been entered yet.
const PlaceholderURL = "https://your-infraweave-app-host.domain.dom/api/v1"

var (
	ErrNotMapping = errors.New("configuration document is not a mapping")
	// ErrUnreachable is returned by Probe when the URL does not serve the API.
	ErrUnreachable = errors.New("could not validate URL")
)

type Document struct {
	OpenAPI string `yaml:"openapi"`
	Info    Info   `yaml:"info"`
}

type Info struct {
	Title          string         `yaml:"title"`
	Tag            string         `yaml:"x-cortex-tag"`
	Type           string         `yaml:"x-cortex-type"`
	CustomMetadata CustomMetadata `yaml:"x-cortex-custom-metadata"`
}

type CustomMetadata struct {
	GitHubBaseURL     string `yaml:"githubBaseUrl"`
	GitLabBaseURL     string `yaml:"gitlabBaseUrl"`
	InfraweaveBaseURL string `yaml:"infraweaveBaseUrl"`
}

// Probe checks that baseURL serves an Infraweave API by listing its projects.
func Probe(ctx context.Context, client *http.Client, baseURL string) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/projects", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if !httpx.OK(resp.StatusCode) {
		return fmt.Errorf("%w: Status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

// Render produces the YAML document for infraweaveURL, with the default
// GitHub and GitLab URLs.
func Render(infraweaveURL string) (string, error) {
	if infraweaveURL == "" {
		infraweaveURL = PlaceholderURL
	}
	doc := Document{
		OpenAPI: "3.0.1",
		Info: Info{
			Title: "Infraweave Plugin Config",
			Tag:   backend.EntityTag,
			Type:  "service",
			CustomMetadata: CustomMetadata{
				GitHubBaseURL:     backend.DefaultGitHubBaseURL,
				GitLabBaseURL:     backend.DefaultGitLabBaseURL,
				InfraweaveBaseURL: infraweaveURL,
			},
		},
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode config document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode config document: %w", err)
	}
	return buf.String(), nil
}

// Parse checks that doc is a YAML mapping and decodes it.
func Parse(doc string) (Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &node); err != nil {
		return Document{}, fmt.Errorf("parse config document: %w", err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return Document{}, ErrNotMapping
	}
	var out Document
	if err := node.Decode(&out); err != nil {
		return Document{}, fmt.Errorf("decode config document: %w", err)
	}
	return out, nil
}
