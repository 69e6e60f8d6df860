package infraweave

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchLimit bounds the requests in flight for one multi-target fetch.
const BatchLimit = 8

// Failure records one target that could not be fetched.
type Failure struct {
	Target string
	Err    error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Target, f.Err) }

// Batch is the flattened result of a multi-target fetch. Items follow target
// order; a failed target contributes nothing to Items.
type Batch[T any] struct {
	Items    []T
	Failures []Failure
}

func (b Batch[T]) HasError() bool { return len(b.Failures) > 0 }

// DeploymentTarget names one project/region pair.
type DeploymentTarget struct {
	ProjectID string `json:"project_id"`
	Region    string `json:"region"`
}

func (t DeploymentTarget) String() string { return t.ProjectID + "/" + t.Region }

func fanOut[K any, T any](ctx context.Context, targets []K, name func(K) string, fetch func(context.Context, K) ([]T, error)) Batch[T] {
	results := make([][]T, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(BatchLimit)
	for i, target := range targets {
		g.Go(func() error {
			results[i], errs[i] = fetch(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	out := Batch[T]{Items: []T{}}
	for i := range targets {
		if errs[i] != nil {
			out.Failures = append(out.Failures, Failure{Target: name(targets[i]), Err: errs[i]})
			continue
		}
		out.Items = append(out.Items, results[i]...)
	}
	return out
}

// MultipleDeployments fetches the deployments of every target concurrently.
func (c *Client) MultipleDeployments(ctx context.Context, targets []DeploymentTarget) Batch[json.RawMessage] {
	return fanOut(ctx, targets, DeploymentTarget.String, func(ctx context.Context, t DeploymentTarget) ([]json.RawMessage, error) {
		return c.Deployments(ctx, t.ProjectID, t.Region)
	})
}

// MultiplePolicies fetches the policies of every environment concurrently.
func (c *Client) MultiplePolicies(ctx context.Context, envs []string) Batch[json.RawMessage] {
	return fanOut(ctx, envs, func(env string) string { return env }, c.Policies)
}
