// Package backend resolves which GitHub, GitLab and Infraweave URLs the panel
// talks to, from custom data stored on the configuration entity.
package backend

import (
	"github.com/davidahmann/infraweave-panel/internal/crypto"
)

// EntityTag is the catalog entity carrying the panel configuration.
const EntityTag = "infraweave-plugin-config"

const (
	DefaultGitHubBaseURL = "https://api.github.com"
	DefaultGitLabBaseURL = "https://gitlab.com/api/v4"
)

// Custom-data keys read by Resolve.
const (
	KeyGitHubBaseURL     = "githubBaseUrl"
	KeyGitLabBaseURL     = "gitlabBaseUrl"
	KeyInfraweaveBaseURL = "infraweaveBaseUrl"
)

type Config struct {
	GitHubBaseURL string `json:"github_base_url"`
	GitLabBaseURL string `json:"gitlab_base_url"`
	// InfraweaveBaseURL has no default; empty means not configured.
	InfraweaveBaseURL string `json:"infraweave_base_url,omitempty"`
}

// Resolve applies defaults to a custom-data dictionary. Values that are not
// strings are treated as absent.
func Resolve(dict map[string]any) Config {
	return Config{
		GitHubBaseURL:     stringOr(dict[KeyGitHubBaseURL], DefaultGitHubBaseURL),
		GitLabBaseURL:     stringOr(dict[KeyGitLabBaseURL], DefaultGitLabBaseURL),
		InfraweaveBaseURL: stringOr(dict[KeyInfraweaveBaseURL], ""),
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// Fingerprint identifies the resolved URLs independent of field order.
func (c Config) Fingerprint() (string, error) {
	return crypto.Fingerprint(c)
}
