package infraweave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/httpx"
	"github.com/davidahmann/infraweave-panel/internal/rest"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

type staticSource backend.State

func (s staticSource) Snapshot() backend.State { return backend.State(s) }

func readyClient(srv *httptest.Server, base string) *Client {
	return New(staticSource(backend.Ready(backend.Config{InfraweaveBaseURL: base})), srv.Client(), nil)
}

func TestPreconditionMessages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	cases := map[string]struct {
		state backend.State
		want  string
		is    error
	}{
		"loading": {backend.Loading(), "Infraweave API is still loading configuration.", rest.ErrConfigLoading},
		"error":   {backend.Failed(fmt.Errorf("boom")), "Infraweave API configuration error: boom", rest.ErrConfigFailed},
		"unset":   {backend.Ready(backend.Config{GitHubBaseURL: "https://api.github.com"}), "Infraweave base URL is not configured.", rest.ErrNotConfigured},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := New(staticSource(tc.state), srv.Client(), nil)
			_, err := c.Projects(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
			assert.ErrorIs(t, err, tc.is)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestEndpointsEscapeSegments(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.EscapedPath())
		mu.Unlock()
		if strings.HasPrefix(r.URL.Path, "/api/v1/module/") || strings.HasPrefix(r.URL.Path, "/api/v1/stack/") ||
			strings.HasPrefix(r.URL.Path, "/api/v1/policy/") || strings.HasPrefix(r.URL.Path, "/api/v1/deployment/") ||
			strings.HasPrefix(r.URL.Path, "/api/v1/logs/") || strings.HasPrefix(r.URL.Path, "/api/v1/change_record/") {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := readyClient(srv, srv.URL+"/api/v1/")
	ctx := context.Background()

	_, err := c.ModuleVersions(ctx, "dev", "s3 bucket")
	require.NoError(t, err)
	_, err = c.Module(ctx, "stable", "s3bucket", "1.0.0+build/1")
	require.NoError(t, err)
	_, err = c.Stack(ctx, "beta", "webapp", "0.1.0")
	require.NoError(t, err)
	_, err = c.Policy(ctx, "prod", "tags", "1.0.0")
	require.NoError(t, err)
	_, err = c.DeploymentsByModule(ctx, "123", "eu-west-1", "s3bucket")
	require.NoError(t, err)
	_, err = c.Deployment(ctx, "123", "eu-west-1", "prod/team", "s3bucket-x")
	require.NoError(t, err)
	_, err = c.Events(ctx, "123", "eu-west-1", "prod", "d1")
	require.NoError(t, err)
	_, err = c.Logs(ctx, "123", "eu-west-1", "job-1")
	require.NoError(t, err)
	_, err = c.ChangeRecord(ctx, "123", "eu-west-1", "prod", "d1", "job-1", "plan")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/v1/modules/versions/dev/s3%20bucket",
		"/api/v1/module/stable/s3bucket/1.0.0+build%2F1",
		"/api/v1/stack/beta/webapp/0.1.0",
		"/api/v1/policy/prod/tags/1.0.0",
		"/api/v1/deployments/module/123/eu-west-1/s3bucket",
		"/api/v1/deployment/123/eu-west-1/prod%2Fteam/s3bucket-x",
		"/api/v1/events/123/eu-west-1/prod/d1",
		"/api/v1/logs/123/eu-west-1/job-1",
		"/api/v1/change_record/123/eu-west-1/prod/d1/job-1/plan",
	}, paths)
}

func TestMissingParameterSendsNothing(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	c := readyClient(srv, srv.URL)
	_, err := c.Deployments(context.Background(), "123", "")
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.Zero(t, calls.Load())
}

func TestPreconditionsBeforeMissingParameter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	loading := New(staticSource(backend.Loading()), srv.Client(), nil)
	_, err := loading.Deployments(context.Background(), "", "eu-west-1")
	assert.ErrorIs(t, err, rest.ErrConfigLoading)
	assert.NotErrorIs(t, err, ErrMissingParameter)

	unset := New(staticSource(backend.Ready(backend.Config{})), srv.Client(), nil)
	_, err = unset.Module(context.Background(), "dev", "", "1.0.0")
	assert.ErrorIs(t, err, rest.ErrNotConfigured)
	assert.Zero(t, calls.Load())
}

func TestPayloadsPassThroughUnchanged(t *testing.T) {
	const deployments = `[{"deployment_id":"d1","epoch":1700000000123.5,"owner":"team-a","regions":["eu-west-1"]}]`
	const deployment = `{"deployment_id":"d1","custom":{"nested":[1,2.25,null]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/deployment/p/r/prod/d1" {
			_, _ = w.Write([]byte(deployment))
			return
		}
		_, _ = w.Write([]byte(deployments))
	}))
	defer srv.Close()
	c := readyClient(srv, srv.URL)

	list, err := c.Deployments(context.Background(), "p", "r")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.JSONEq(t, `{"deployment_id":"d1","epoch":1700000000123.5,"owner":"team-a","regions":["eu-west-1"]}`, string(list[0]))

	one, err := c.Deployment(context.Background(), "p", "r", "prod", "d1")
	require.NoError(t, err)
	assert.JSONEq(t, deployment, string(one))
}

func TestAPIErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	_, err := readyClient(srv, srv.URL).Projects(context.Background())
	var apiErr *httpx.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "/projects", apiErr.Endpoint)
	assert.Equal(t, "upstream exploded", apiErr.Body)
	assert.Equal(t, "Infraweave API Error: 500 Internal Server Error - /projects\nupstream exploded", err.Error())
}

func TestGroupByTrack(t *testing.T) {
	got := GroupByTrack([]json.RawMessage{
		json.RawMessage(`{"module":"s3bucket","track":"dev","version":"0.2.0-dev","epoch":1.5}`),
		json.RawMessage(`{"module":"vpc","track":"stable","version":"1.0.0"}`),
		json.RawMessage(`{"module":"s3bucket","track":"stable","version":"0.1.0"}`),
		json.RawMessage(`{"module":"s3bucket","track":"dev","version":"0.3.0-dev"}`),
		json.RawMessage(`{"module":"vpc","track":"nightly","version":"9.9.9"}`),
		json.RawMessage(`{"module":7,"track":"dev","version":"1.0.0"}`),
	})
	assert.Equal(t, []types.GroupedModule{
		{Module: "s3bucket", DevVersion: "0.3.0-dev", StableVersion: "0.1.0"},
		{Module: "vpc", StableVersion: "1.0.0"},
	}, got)
	assert.Empty(t, GroupByTrack(nil))
}

func TestGroupedStacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stacks", r.URL.Path)
		_, _ = w.Write([]byte(`[{"module":"webapp","track":"beta","version":"0.1.0-beta"},{"module":"webapp","track":"alpha","version":"0.2.0-alpha"}]`))
	}))
	defer srv.Close()

	got, err := readyClient(srv, srv.URL).GroupedStacks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.GroupedModule{{Module: "webapp", BetaVersion: "0.1.0-beta", AlphaVersion: "0.2.0-alpha"}}, got)
}

func TestMultipleDeploymentsKeepsTargetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		project, region := parts[1], parts[2]
		if project == "bad" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if project == "slow" {
			time.Sleep(20 * time.Millisecond)
		}
		fmt.Fprintf(w, `[{"deployment_id":"%s-%s"}]`, project, region)
	}))
	defer srv.Close()

	batch := readyClient(srv, srv.URL).MultipleDeployments(context.Background(), []DeploymentTarget{
		{ProjectID: "slow", Region: "us-east-1"},
		{ProjectID: "bad", Region: "us-east-1"},
		{ProjectID: "fast", Region: "eu-west-1"},
	})

	require.True(t, batch.HasError())
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "bad/us-east-1", batch.Failures[0].Target)
	ids := make([]string, 0, len(batch.Items))
	for _, raw := range batch.Items {
		var d types.Deployment
		require.NoError(t, json.Unmarshal(raw, &d))
		ids = append(ids, d.DeploymentID)
	}
	assert.Equal(t, []string{"slow-us-east-1", "fast-eu-west-1"}, ids)
}

func TestMultiplePoliciesBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`[{"policy":"p"}]`))
	}))
	defer srv.Close()

	envs := make([]string, 20)
	for i := range envs {
		envs[i] = fmt.Sprintf("env%d", i)
	}
	batch := readyClient(srv, srv.URL).MultiplePolicies(context.Background(), envs)
	assert.False(t, batch.HasError())
	assert.Len(t, batch.Items, 20)
	assert.LessOrEqual(t, peak.Load(), int32(BatchLimit))
}
