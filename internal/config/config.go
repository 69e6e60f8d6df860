package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	Host       HostConfig       `yaml:"host"`
	GitHub     TokenConfig      `yaml:"github"`
	GitLab     TokenConfig      `yaml:"gitlab"`
	HTTP       HTTPConfig       `yaml:"http"`
	Pagination PaginationConfig `yaml:"pagination"`
	Journal    JournalConfig    `yaml:"journal"`
	Auth       AuthConfig       `yaml:"auth"`
}

// HostConfig is the initial context of the catalog host the panel runs in.
type HostConfig struct {
	APIBaseURL     string `yaml:"api_base_url"`
	Tag            string `yaml:"tag"`
	EntityTag      string `yaml:"entity_tag"`
	ContextFeedURL string `yaml:"context_feed_url"`
}

type TokenConfig struct {
	Token string `yaml:"token"`
}

type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type PaginationConfig struct {
	MaxPages int `yaml:"max_pages"`
}

type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	Token string `yaml:"token"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// ApplyDefaults fills optional fields left empty.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.HTTP.TimeoutSeconds == 0 {
		c.HTTP.TimeoutSeconds = 30
	}
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return fmt.Errorf("http.timeout_seconds must not be negative")
	}
	if c.Pagination.MaxPages < 0 {
		return fmt.Errorf("pagination.max_pages must not be negative")
	}

	switch c.Journal.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required when journal.driver=%s", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal.driver must be one of memory, sqlite, postgres")
	}

	if c.Host.ContextFeedURL != "" &&
		!strings.HasPrefix(c.Host.ContextFeedURL, "ws://") && !strings.HasPrefix(c.Host.ContextFeedURL, "wss://") {
		return fmt.Errorf("host.context_feed_url must be a ws:// or wss:// url")
	}

	return nil
}

// Timeout is the outbound HTTP timeout.
func (c Config) Timeout() time.Duration {
	if c.HTTP.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
