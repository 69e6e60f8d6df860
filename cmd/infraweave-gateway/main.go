package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/davidahmann/infraweave-panel/internal/config"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error

// serverFactory builds the server and starts its background loops on ctx.
// The returned func releases what the server opened.
type serverFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*http.Server, func(), error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := pflag.NewFlagSet("infraweave-gateway", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to gateway config file")
	listenAddr := fs.String("listen", "", "listen address, overrides the config file")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := firstNonEmpty(*configPath, getenv("INFRAWEAVE_CONFIG_PATH"))

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyEnv(&cfg, getenv)
	cfg.ListenAddr = firstNonEmpty(*listenAddr, cfg.ListenAddr)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(os.Stderr, firstNonEmpty(getenv("INFRAWEAVE_LOG_LEVEL"), *logLevel))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := factory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("infraweave-gateway listening", "addr", cfg.ListenAddr, "journal", firstNonEmpty(cfg.Journal.Driver, "memory"))
	if err := listen(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// applyEnv lets INFRAWEAVE_* variables override the file config.
func applyEnv(cfg *config.Config, getenv envFn) {
	cfg.ListenAddr = firstNonEmpty(getenv("INFRAWEAVE_LISTEN_ADDR"), cfg.ListenAddr)
	cfg.Host.APIBaseURL = firstNonEmpty(getenv("INFRAWEAVE_HOST_API_BASE_URL"), cfg.Host.APIBaseURL)
	cfg.Host.Tag = firstNonEmpty(getenv("INFRAWEAVE_HOST_TAG"), cfg.Host.Tag)
	cfg.Host.EntityTag = firstNonEmpty(getenv("INFRAWEAVE_ENTITY_TAG"), cfg.Host.EntityTag)
	cfg.Host.ContextFeedURL = firstNonEmpty(getenv("INFRAWEAVE_CONTEXT_FEED_URL"), cfg.Host.ContextFeedURL)
	cfg.GitHub.Token = firstNonEmpty(getenv("INFRAWEAVE_GITHUB_TOKEN"), cfg.GitHub.Token)
	cfg.GitLab.Token = firstNonEmpty(getenv("INFRAWEAVE_GITLAB_TOKEN"), cfg.GitLab.Token)
	cfg.Journal.Driver = firstNonEmpty(getenv("INFRAWEAVE_JOURNAL_DRIVER"), cfg.Journal.Driver)
	cfg.Journal.DSN = firstNonEmpty(getenv("INFRAWEAVE_JOURNAL_DSN"), cfg.Journal.DSN)
	cfg.Auth.Token = firstNonEmpty(getenv("INFRAWEAVE_PANEL_TOKEN"), cfg.Auth.Token)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
