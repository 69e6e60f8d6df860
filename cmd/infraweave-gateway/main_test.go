package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/infraweave-panel/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Config{ListenAddr: "127.0.0.1:9999"}
	cfg.ApplyDefaults()
	srv, cleanup, err := newServer(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer cleanup()
	if srv.Addr != cfg.ListenAddr {
		t.Fatalf("expected addr %s, got %s", cfg.ListenAddr, srv.Addr)
	}

	res := httptest.NewRecorder()
	srv.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"config":"loading"`) {
		t.Fatalf("expected loading config without a host context, got %s", res.Body.String())
	}
}

func TestNewServerSQLiteJournal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Config{Journal: config.JournalConfig{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "journal.db"),
	}}
	cfg.ApplyDefaults()
	srv, cleanup, err := newServer(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer cleanup()

	res := httptest.NewRecorder()
	srv.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/journal", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
}

func TestOpenJournalUnknownDriver(t *testing.T) {
	if _, _, err := openJournal(config.JournalConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunDefaults(t *testing.T) {
	factory := func(_ context.Context, cfg config.Config, _ *slog.Logger) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":8080" {
			t.Fatalf("expected default addr, got %s", cfg.ListenAddr)
		}
		if cfg.Timeout().Seconds() != 30 {
			t.Fatalf("expected default timeout, got %s", cfg.Timeout())
		}
		return &http.Server{Addr: cfg.ListenAddr}, nil, nil
	}

	listen := func(_ *http.Server) error {
		return http.ErrServerClosed
	}

	getenv := func(string) string { return "" }
	if err := run(nil, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunError(t *testing.T) {
	listenErr := errors.New("listen failed")
	listen := func(_ *http.Server) error {
		return listenErr
	}

	factory := func(_ context.Context, cfg config.Config, _ *slog.Logger) (*http.Server, func(), error) {
		return &http.Server{Addr: cfg.ListenAddr}, nil, nil
	}

	getenv := func(key string) string {
		if key == "INFRAWEAVE_LISTEN_ADDR" {
			return "127.0.0.1:1234"
		}
		return ""
	}

	if err := run(nil, getenv, listen, factory); !errors.Is(err, listenErr) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunFactoryError(t *testing.T) {
	factoryErr := errors.New("journal unreachable")
	factory := func(context.Context, config.Config, *slog.Logger) (*http.Server, func(), error) {
		return nil, nil, factoryErr
	}
	listen := func(*http.Server) error {
		t.Fatalf("listen must not be called")
		return nil
	}
	if err := run(nil, func(string) string { return "" }, listen, factory); !errors.Is(err, factoryErr) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestRunLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := "listen_addr: \":9999\"\nhost:\n  api_base_url: \"https://api.example.com/api/v1\"\n  tag: \"infraweave\"\ngithub:\n  token: \"${TEST_GATEWAY_GITHUB_TOKEN}\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_GATEWAY_GITHUB_TOKEN", "gh-secret")

	factory := func(_ context.Context, cfg config.Config, _ *slog.Logger) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":9999" {
			t.Fatalf("expected addr from config, got %s", cfg.ListenAddr)
		}
		if cfg.Host.APIBaseURL != "https://api.example.com/api/v1" {
			t.Fatalf("expected host api base url from config, got %s", cfg.Host.APIBaseURL)
		}
		if cfg.GitHub.Token != "gh-secret" {
			t.Fatalf("expected expanded github token, got %q", cfg.GitHub.Token)
		}
		if cfg.GitLab.Token != "gl-env" {
			t.Fatalf("expected gitlab token from env, got %q", cfg.GitLab.Token)
		}
		return &http.Server{Addr: cfg.ListenAddr}, nil, nil
	}

	listen := func(_ *http.Server) error { return http.ErrServerClosed }
	getenv := func(key string) string {
		switch key {
		case "INFRAWEAVE_CONFIG_PATH":
			return path
		case "INFRAWEAVE_GITLAB_TOKEN":
			return "gl-env"
		}
		return ""
	}

	if err := run(nil, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunListenFlagWins(t *testing.T) {
	factory := func(_ context.Context, cfg config.Config, _ *slog.Logger) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":7000" {
			t.Fatalf("expected flag addr, got %s", cfg.ListenAddr)
		}
		return &http.Server{Addr: cfg.ListenAddr}, nil, nil
	}
	listen := func(_ *http.Server) error { return http.ErrServerClosed }
	getenv := func(key string) string {
		if key == "INFRAWEAVE_LISTEN_ADDR" {
			return ":6000"
		}
		return ""
	}
	if err := run([]string{"--listen", ":7000"}, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	factory := func(context.Context, config.Config, *slog.Logger) (*http.Server, func(), error) {
		t.Fatalf("factory must not be called")
		return nil, nil, nil
	}
	listen := func(*http.Server) error { return nil }

	badDriver := func(key string) string {
		if key == "INFRAWEAVE_JOURNAL_DRIVER" {
			return "mongo"
		}
		return ""
	}
	if err := run(nil, badDriver, listen, factory); err == nil {
		t.Fatalf("expected journal driver error")
	}
	if err := run([]string{"--log-level", "loud"}, func(string) string { return "" }, listen, factory); err == nil {
		t.Fatalf("expected log level error")
	}
	if err := run([]string{"--nope"}, func(string) string { return "" }, listen, factory); err == nil {
		t.Fatalf("expected flag error")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "a", "b"); got != "a" {
		t.Fatalf("expected a, got %s", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}

func TestListenAndServeInvalidAddr(t *testing.T) {
	err := listenAndServe(&http.Server{Addr: "127.0.0.1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestMainNoError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
		return nil
	}

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if called {
		t.Fatalf("unexpected fatal call")
	}
}

func TestMainError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
		return errors.New("boom")
	}

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if !called {
		t.Fatalf("expected fatal call")
	}
}
