package api

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics.Handler())
	}

	mux.HandleFunc("GET /v1/config", h.Config)
	mux.HandleFunc("POST /v1/config/reload", h.ReloadConfig)

	mux.HandleFunc("GET /v1/setup/document", h.SetupDocument)
	mux.HandleFunc("POST /v1/setup/validate", h.SetupValidate)
	mux.HandleFunc("POST /v1/setup/entity", h.SetupEntity)

	mux.HandleFunc("GET /v1/entity/custom-events", h.CustomEvents)

	mux.HandleFunc("GET /v1/infraweave/projects", h.Projects)
	mux.HandleFunc("GET /v1/infraweave/modules", h.Modules)
	mux.HandleFunc("GET /v1/infraweave/modules/{track}/{name}/versions", h.ModuleVersions)
	mux.HandleFunc("GET /v1/infraweave/modules/{track}/{name}/versions/{version}", h.Module)
	mux.HandleFunc("GET /v1/infraweave/stacks", h.Stacks)
	mux.HandleFunc("GET /v1/infraweave/stacks/{track}/{name}/versions/{version}", h.Stack)
	mux.HandleFunc("GET /v1/infraweave/policies/{env}", h.Policies)
	mux.HandleFunc("GET /v1/infraweave/policies/{env}/{name}/{version}", h.Policy)
	mux.HandleFunc("POST /v1/infraweave/policies/batch", h.MultiplePolicies)
	mux.HandleFunc("GET /v1/infraweave/deployments/{project}/{region}", h.Deployments)
	mux.HandleFunc("GET /v1/infraweave/deployments/{project}/{region}/{env}/{id}", h.Deployment)
	mux.HandleFunc("GET /v1/infraweave/deployments/{project}/{region}/{env}/{id}/events", h.Events)
	mux.HandleFunc("GET /v1/infraweave/deployments/{project}/{region}/{env}/{id}/change-records/{job}/{change_type}", h.ChangeRecord)
	mux.HandleFunc("POST /v1/infraweave/deployments/batch", h.MultipleDeployments)
	mux.HandleFunc("GET /v1/infraweave/logs/{project}/{region}/{job}", h.Logs)

	mux.HandleFunc("POST /v1/github/pull-requests", h.GitHubPullRequest)
	mux.HandleFunc("POST /v1/github/branches", h.GitHubBranch)
	mux.HandleFunc("POST /v1/github/commits", h.GitHubCommit)
	mux.HandleFunc("POST /v1/gitlab/merge-requests", h.GitLabMergeRequest)
	mux.HandleFunc("POST /v1/gitlab/branches", h.GitLabBranch)
	mux.HandleFunc("POST /v1/gitlab/commits", h.GitLabCommit)

	mux.HandleFunc("GET /v1/journal", h.ListRuns)
	mux.HandleFunc("GET /v1/journal/{id}", h.GetRun)

	var handler http.Handler = mux
	handler = h.Metrics.InstrumentHandler(handler)
	handler = requestLogger(h.logger(), handler)
	return otelhttp.NewHandler(handler, "infraweave-gateway")
}
