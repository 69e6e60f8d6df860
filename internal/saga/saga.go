// Package saga runs an ordered list of named, non-transactional steps and
// reports which of them were applied. Nothing is compensated on failure.
package saga

import (
	"context"
	"errors"
)

type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError reports the step that failed. Its message is the step's error
// unchanged; Applied lists the steps that completed before it.
type StepError struct {
	Step    string
	Applied []string
	Err     error
}

func (e *StepError) Error() string { return e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// Recorder observes a run. Implementations must not block for long; their
// errors are not propagated.
type Recorder interface {
	Started(ctx context.Context) error
	StepApplied(ctx context.Context, step string, applied []string) error
	Finished(ctx context.Context, applied []string, failed *StepError) error
}

// Run executes steps in order and stops at the first failure. It returns the
// names of the applied steps and, on failure, a *StepError.
func Run(ctx context.Context, rec Recorder, steps ...Step) ([]string, error) {
	if rec == nil {
		rec = nopRecorder{}
	}
	_ = rec.Started(ctx)

	applied := make([]string, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return applied, finish(ctx, rec, applied, step.Name, err)
		}
		if err := step.Run(ctx); err != nil {
			return applied, finish(ctx, rec, applied, step.Name, err)
		}
		applied = append(applied, step.Name)
		_ = rec.StepApplied(ctx, step.Name, append([]string(nil), applied...))
	}
	_ = rec.Finished(ctx, append([]string(nil), applied...), nil)
	return applied, nil
}

func finish(ctx context.Context, rec Recorder, applied []string, step string, err error) error {
	stepErr := &StepError{Step: step, Applied: append([]string(nil), applied...), Err: err}
	_ = rec.Finished(context.WithoutCancel(ctx), stepErr.Applied, stepErr)
	return stepErr
}

// FailedStep returns the name of the failed step if err came from Run.
func FailedStep(err error) (string, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, true
	}
	return "", false
}

type nopRecorder struct{}

func (nopRecorder) Started(context.Context) error                        { return nil }
func (nopRecorder) StepApplied(context.Context, string, []string) error  { return nil }
func (nopRecorder) Finished(context.Context, []string, *StepError) error { return nil }
