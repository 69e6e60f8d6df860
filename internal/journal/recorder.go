package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/infraweave-panel/internal/metrics"
	"github.com/davidahmann/infraweave-panel/internal/saga"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

// Recorder journals one saga run. Store failures are logged and returned to
// the saga, which ignores them, so a broken journal never fails a write.
type Recorder struct {
	Store   Store
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Now     func() time.Time

	mu  sync.Mutex
	run Run
}

// NewRecorder prepares a run record with a fresh ID. Store may be nil, in
// which case only logging and metrics happen.
func NewRecorder(store Store, kind string, opts types.MergeRequestOptions, logger *slog.Logger, m *metrics.Collector) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		Store:   store,
		Logger:  logger,
		Metrics: m,
		Now:     time.Now,
		run: Run{
			RunID:        uuid.NewString(),
			Kind:         kind,
			Repository:   opts.RepositoryPath,
			SourceBranch: opts.SourceBranch,
			TargetBranch: opts.TargetBranch,
			AppliedSteps: []string{},
		},
	}
}

func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run.RunID
}

// Run returns a copy of the current record.
func (r *Recorder) Run() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.run
	out.AppliedSteps = append([]string(nil), r.run.AppliedSteps...)
	return out
}

// SetWebURL attaches the URL of the opened pull/merge request.
func (r *Recorder) SetWebURL(u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.WebURL = &u
}

func (r *Recorder) Started(ctx context.Context) error {
	return r.update(ctx, func(run *Run, now string) {
		run.Status = StatusRunning
		run.CreatedAt = now
	})
}

func (r *Recorder) StepApplied(ctx context.Context, step string, applied []string) error {
	return r.update(ctx, func(run *Run, _ string) {
		run.AppliedSteps = applied
	})
}

func (r *Recorder) Finished(ctx context.Context, applied []string, failed *saga.StepError) error {
	err := r.update(ctx, func(run *Run, _ string) {
		run.AppliedSteps = applied
		if failed != nil {
			step, msg := failed.Step, failed.Error()
			run.Status = StatusFailed
			run.FailedStep = &step
			run.Error = &msg
			return
		}
		run.Status = StatusSucceeded
	})
	final := r.Run()
	r.Metrics.WriteRun(final.Kind, final.Status)
	attrs := []any{"run_id", final.RunID, "kind", final.Kind, "repository", final.Repository,
		"status", final.Status, "applied_steps", final.AppliedSteps}
	if failed != nil {
		r.Logger.Warn("write run failed", append(attrs, "failed_step", failed.Step, "error", failed.Err)...)
	} else {
		r.Logger.Info("write run succeeded", attrs...)
	}
	return err
}

func (r *Recorder) update(_ context.Context, fn func(run *Run, now string)) error {
	r.mu.Lock()
	now := r.Now().UTC().Format(time.RFC3339)
	fn(&r.run, now)
	r.run.UpdatedAt = now
	snapshot := r.run
	snapshot.AppliedSteps = append([]string(nil), r.run.AppliedSteps...)
	r.mu.Unlock()

	if r.Store == nil {
		return nil
	}
	if err := r.Store.PutRun(snapshot); err != nil {
		r.Logger.Error("journal write failed", "run_id", snapshot.RunID, "status", snapshot.Status, "error", err)
		return err
	}
	return nil
}

var _ saga.Recorder = (*Recorder)(nil)
