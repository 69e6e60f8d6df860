package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/davidahmann/infraweave-panel/internal/api"
	"github.com/davidahmann/infraweave-panel/internal/auth"
	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/config"
	"github.com/davidahmann/infraweave-panel/internal/configdoc"
	"github.com/davidahmann/infraweave-panel/internal/customdata"
	"github.com/davidahmann/infraweave-panel/internal/github"
	"github.com/davidahmann/infraweave-panel/internal/gitlab"
	"github.com/davidahmann/infraweave-panel/internal/hostctx"
	"github.com/davidahmann/infraweave-panel/internal/httpx"
	"github.com/davidahmann/infraweave-panel/internal/infraweave"
	"github.com/davidahmann/infraweave-panel/internal/journal"
	"github.com/davidahmann/infraweave-panel/internal/journal/pgstore"
	"github.com/davidahmann/infraweave-panel/internal/journal/sqlstore"
	"github.com/davidahmann/infraweave-panel/internal/metrics"
	"github.com/davidahmann/infraweave-panel/internal/paginate"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*http.Server, func(), error) {
	m := metrics.New()
	client := func(backendName string) *http.Client {
		return httpx.NewClient(httpx.ClientOptions{Backend: backendName, Timeout: cfg.Timeout(), Metrics: m})
	}
	catalogHTTP := client("catalog")

	fetcher := paginate.New(catalogHTTP, logger)
	fetcher.MaxPages = cfg.Pagination.MaxPages
	fetcher.Metrics = m
	custom := customdata.NewClient(fetcher)

	tracker := hostctx.New()
	if cfg.Host.APIBaseURL != "" {
		tracker.Set(types.PluginContext{APIBaseURL: cfg.Host.APIBaseURL, Tag: cfg.Host.Tag})
	}

	bc := backend.NewContext(tracker, custom, logger)
	bc.Metrics = m
	if cfg.Host.EntityTag != "" {
		bc.EntityTag = cfg.Host.EntityTag
	}

	store, closeStore, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, nil, err
	}

	infraweaveHTTP := client("infraweave")
	h := &api.Handler{
		Auth:       auth.StaticToken{Token: cfg.Auth.Token},
		Backend:    bc,
		Host:       tracker,
		CustomData: custom,
		Setup: &configdoc.Setup{
			HTTP: infraweaveHTTP,
			Writer: &configdoc.HTTPEntityWriter{
				HTTP:       catalogHTTP,
				APIBaseURL: func() string { pc, _ := tracker.Current(); return pc.APIBaseURL },
			},
			Logger: logger,
		},
		Infraweave: infraweave.New(bc, infraweaveHTTP, logger),
		GitHub: github.New(bc, client("github"), github.Options{
			Token:   cfg.GitHub.Token,
			Journal: store,
			Logger:  logger,
			Metrics: m,
		}),
		GitLab: gitlab.New(bc, client("gitlab"), gitlab.Options{
			Token:   cfg.GitLab.Token,
			Journal: store,
			Logger:  logger,
			Metrics: m,
		}),
		Journal: store,
		Metrics: m,
		Logger:  logger,
	}

	go func() {
		if err := bc.Bootstrap(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("backend config bootstrap stopped", "error", err)
		}
	}()
	if cfg.Host.ContextFeedURL != "" {
		feed := &hostctx.Feed{URL: cfg.Host.ContextFeedURL, Tracker: tracker, Logger: logger}
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("host context feed stopped", "url", cfg.Host.ContextFeedURL, "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server, closeStore, nil
}

// openJournal opens and migrates the configured run journal.
func openJournal(cfg config.JournalConfig) (journal.Store, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		return journal.NewInMemoryStore(), func() {}, nil
	case "sqlite":
		store, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		if err := journal.Migrate(store.DB(), journal.DBSQLite); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate sqlite journal: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		store, err := pgstore.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres journal: %w", err)
		}
		if err := journal.Migrate(store.DB(), journal.DBPostgres); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate postgres journal: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}
