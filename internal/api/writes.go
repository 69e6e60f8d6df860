package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/davidahmann/infraweave-panel/internal/saga"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

// writeMergeRequest answers a create-with-file run. A failed run still
// reports its run id so the journal entry can be looked up.
func (h *Handler) writeMergeRequest(w http.ResponseWriter, r *http.Request, mr types.MergeRequest, err error) {
	if err == nil {
		writeJSON(w, http.StatusCreated, mr)
		return
	}
	body := errorBody(err)
	if mr.RunID != "" {
		body["run_id"] = mr.RunID
	}
	status := statusFor(err)
	var stepErr *saga.StepError
	if errors.As(err, &stepErr) {
		h.logger().Warn("write run failed", "run_id", mr.RunID, "step", stepErr.Step, "applied", stepErr.Applied, "error", stepErr.Err)
	}
	writeJSON(w, status, body)
}

func (h *Handler) GitHubPullRequest(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.GitHub == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "github client not configured"})
		return
	}
	var opts types.MergeRequestOptions
	if err := decodeJSON(r, &opts); err != nil {
		h.writeError(w, r, err)
		return
	}
	mr, err := h.GitHub.CreatePullRequestWithFile(r.Context(), opts)
	h.writeMergeRequest(w, r, mr, err)
}

func (h *Handler) GitLabMergeRequest(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.GitLab == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "gitlab client not configured"})
		return
	}
	var opts types.MergeRequestOptions
	if err := decodeJSON(r, &opts); err != nil {
		h.writeError(w, r, err)
		return
	}
	mr, err := h.GitLab.CreateMergeRequestWithFile(r.Context(), opts)
	h.writeMergeRequest(w, r, mr, err)
}

type branchRequest struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	From       string `json:"from"`
}

func (b branchRequest) validate() error {
	switch {
	case b.Repository == "":
		return fmt.Errorf("%w: repository is required", errBadRequest)
	case b.From == "":
		return fmt.Errorf("%w: from is required", errBadRequest)
	}
	return nil
}

type commitRequest struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Path       string `json:"path"`
	Content    string `json:"content"`
	Message    string `json:"message"`
}

func (c commitRequest) validate() error {
	switch {
	case c.Repository == "":
		return fmt.Errorf("%w: repository is required", errBadRequest)
	case c.Branch == "":
		return fmt.Errorf("%w: branch is required", errBadRequest)
	case c.Path == "":
		return fmt.Errorf("%w: path is required", errBadRequest)
	case c.Message == "":
		return fmt.Errorf("%w: message is required", errBadRequest)
	}
	return nil
}

func (h *Handler) GitHubBranch(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.GitHub == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "github client not configured"})
		return
	}
	var req branchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.GitHub.CreateBranch(r.Context(), req.Repository, req.Branch, req.From); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"branch": req.Branch})
}

func (h *Handler) GitHubCommit(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.GitHub == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "github client not configured"})
		return
	}
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.GitHub.CreateCommit(r.Context(), req.Repository, req.Branch, req.Path, req.Content, req.Message); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"branch": req.Branch, "path": req.Path})
}

func (h *Handler) GitLabBranch(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.GitLab == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "gitlab client not configured"})
		return
	}
	var req branchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.GitLab.CreateBranch(r.Context(), req.Repository, req.Branch, req.From); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"branch": req.Branch})
}

func (h *Handler) GitLabCommit(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.GitLab == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "gitlab client not configured"})
		return
	}
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.GitLab.CreateCommit(r.Context(), req.Repository, req.Branch, req.Path, req.Content, req.Message); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"branch": req.Branch, "path": req.Path})
}
