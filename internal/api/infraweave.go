package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/davidahmann/infraweave-panel/internal/infraweave"
)

// serveRead runs one Infraweave read and writes its result or mapped error.
func serveRead[T any](h *Handler, w http.ResponseWriter, r *http.Request, fetch func(c *infraweave.Client, ctx context.Context) (T, error)) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Infraweave == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "infraweave client not configured"})
		return
	}
	out, err := fetch(h.Infraweave, r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func grouped(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("grouped"))
	return err == nil && v
}

func (h *Handler) Projects(w http.ResponseWriter, r *http.Request) {
	serveRead(h, w, r, (*infraweave.Client).Projects)
}

func (h *Handler) Modules(w http.ResponseWriter, r *http.Request) {
	if grouped(r) {
		serveRead(h, w, r, (*infraweave.Client).GroupedModules)
		return
	}
	serveRead(h, w, r, (*infraweave.Client).Modules)
}

func (h *Handler) ModuleVersions(w http.ResponseWriter, r *http.Request) {
	track, name := r.PathValue("track"), r.PathValue("name")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.ModuleVersions(ctx, track, name)
	})
}

func (h *Handler) Module(w http.ResponseWriter, r *http.Request) {
	track, name, version := r.PathValue("track"), r.PathValue("name"), r.PathValue("version")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.Module(ctx, track, name, version)
	})
}

func (h *Handler) Stacks(w http.ResponseWriter, r *http.Request) {
	if grouped(r) {
		serveRead(h, w, r, (*infraweave.Client).GroupedStacks)
		return
	}
	serveRead(h, w, r, (*infraweave.Client).Stacks)
}

func (h *Handler) Stack(w http.ResponseWriter, r *http.Request) {
	track, name, version := r.PathValue("track"), r.PathValue("name"), r.PathValue("version")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.Stack(ctx, track, name, version)
	})
}

func (h *Handler) Policies(w http.ResponseWriter, r *http.Request) {
	env := r.PathValue("env")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.Policies(ctx, env)
	})
}

func (h *Handler) Policy(w http.ResponseWriter, r *http.Request) {
	env, name, version := r.PathValue("env"), r.PathValue("name"), r.PathValue("version")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.Policy(ctx, env, name, version)
	})
}

func (h *Handler) Deployments(w http.ResponseWriter, r *http.Request) {
	project, region := r.PathValue("project"), r.PathValue("region")
	module := r.URL.Query().Get("module")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		if module != "" {
			return c.DeploymentsByModule(ctx, project, region, module)
		}
		return c.Deployments(ctx, project, region)
	})
}

func (h *Handler) Deployment(w http.ResponseWriter, r *http.Request) {
	project, region, env, id := r.PathValue("project"), r.PathValue("region"), r.PathValue("env"), r.PathValue("id")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.Deployment(ctx, project, region, env, id)
	})
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	project, region, env, id := r.PathValue("project"), r.PathValue("region"), r.PathValue("env"), r.PathValue("id")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.Events(ctx, project, region, env, id)
	})
}

func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	project, region, job := r.PathValue("project"), r.PathValue("region"), r.PathValue("job")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.Logs(ctx, project, region, job)
	})
}

func (h *Handler) ChangeRecord(w http.ResponseWriter, r *http.Request) {
	project, region := r.PathValue("project"), r.PathValue("region")
	env, id := r.PathValue("env"), r.PathValue("id")
	job, changeType := r.PathValue("job"), r.PathValue("change_type")
	serveRead(h, w, r, func(c *infraweave.Client, ctx context.Context) (any, error) {
		return c.ChangeRecord(ctx, project, region, env, id, job, changeType)
	})
}

type failureResponse struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

type batchResponse[T any] struct {
	Items    []T               `json:"items"`
	Failures []failureResponse `json:"failures"`
}

// writeBatch reports partial results with 200. Only a batch where every
// target failed is mapped like a single failed read.
func writeBatch[T any](h *Handler, w http.ResponseWriter, r *http.Request, targets int, b infraweave.Batch[T]) {
	if targets > 0 && len(b.Failures) == targets {
		h.writeError(w, r, b.Failures[0].Err)
		return
	}
	resp := batchResponse[T]{Items: b.Items, Failures: []failureResponse{}}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	for _, f := range b.Failures {
		resp.Failures = append(resp.Failures, failureResponse{Target: f.Target, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type multiDeploymentsRequest struct {
	Targets []infraweave.DeploymentTarget `json:"targets"`
}

func (h *Handler) MultipleDeployments(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Infraweave == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "infraweave client not configured"})
		return
	}
	var req multiDeploymentsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Targets) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: targets is required", errBadRequest))
		return
	}
	writeBatch(h, w, r, len(req.Targets), h.Infraweave.MultipleDeployments(r.Context(), req.Targets))
}

type multiPoliciesRequest struct {
	Environments []string `json:"environments"`
}

func (h *Handler) MultiplePolicies(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Infraweave == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "infraweave client not configured"})
		return
	}
	var req multiPoliciesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Environments) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: environments is required", errBadRequest))
		return
	}
	writeBatch(h, w, r, len(req.Environments), h.Infraweave.MultiplePolicies(r.Context(), req.Environments))
}
