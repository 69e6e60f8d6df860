package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/davidahmann/infraweave-panel/internal/customdata"
	"github.com/davidahmann/infraweave-panel/internal/hostctx"
	"github.com/davidahmann/infraweave-panel/internal/metrics"
)

// CustomDataSource fetches the raw custom-data items of an entity.
type CustomDataSource interface {
	CustomData(ctx context.Context, apiBaseURL string, entityTag string) ([]any, error)
}

// Context owns the configuration state. It starts in PhaseLoading.
type Context struct {
	Host      *hostctx.Tracker
	Source    CustomDataSource
	EntityTag string
	Logger    *slog.Logger
	Metrics   *metrics.Collector

	mu      sync.Mutex
	state   State
	subs    map[int]chan State
	nextSub int
	// loadSeq discards results of loads superseded by a later one.
	loadSeq uint64
}

func NewContext(host *hostctx.Tracker, source CustomDataSource, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Context{
		Host:      host,
		Source:    source,
		EntityTag: EntityTag,
		Logger:    logger,
		state:     Loading(),
		subs:      map[int]chan State{},
	}
	return c
}

// Snapshot returns the current state.
func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving every later state transition; a slow
// reader only sees the newest state.
func (c *Context) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Context) set(seq uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.loadSeq {
		return false
	}
	c.state = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
	c.Metrics.SetConfigPhase(string(s.Phase), Phases)
	return true
}

// Load resolves the configuration from the entity's custom data. Without a
// host API base URL or entity tag the state stays Loading and Load returns
// the current snapshot.
func (c *Context) Load(ctx context.Context) State {
	var apiBaseURL string
	if c.Host != nil {
		if pc, ok := c.Host.Current(); ok {
			apiBaseURL = pc.APIBaseURL
		}
	}
	if apiBaseURL == "" || c.EntityTag == "" || c.Source == nil {
		return c.Snapshot()
	}

	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()
	c.set(seq, Loading())

	items, err := c.Source.CustomData(ctx, apiBaseURL, c.EntityTag)
	var next State
	if err != nil {
		c.Logger.Error("backend config load failed", "entity_tag", c.EntityTag, "error", err)
		next = Failed(err)
	} else {
		cfg := Resolve(customdata.ListToDict(items))
		c.Logger.Info("backend config loaded",
			"entity_tag", c.EntityTag,
			"github_base_url", cfg.GitHubBaseURL,
			"gitlab_base_url", cfg.GitLabBaseURL,
			"infraweave_configured", cfg.InfraweaveBaseURL != "",
		)
		next = Ready(cfg)
	}
	if !c.set(seq, next) {
		return c.Snapshot()
	}
	return next
}

// Bootstrap waits for the first host context, loads, and reloads whenever a
// pushed context changes the API base URL. It returns when ctx is done.
func (c *Context) Bootstrap(ctx context.Context) error {
	if c.Host == nil {
		return errors.New("backend context has no host tracker")
	}
	updates, cancel := c.Host.Subscribe()
	defer cancel()

	pc, err := c.Host.Wait(ctx)
	if err != nil {
		return err
	}
	loaded := pc.APIBaseURL
	c.Load(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next := <-updates:
			if next.APIBaseURL == loaded {
				continue
			}
			c.Logger.Info("host api base url changed, reloading backend config", "api_base_url", next.APIBaseURL)
			loaded = next.APIBaseURL
			c.Load(ctx)
		}
	}
}

var _ CustomDataSource = (*customdata.Client)(nil)
