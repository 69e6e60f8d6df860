package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/davidahmann/infraweave-panel/internal/auth"
	"github.com/davidahmann/infraweave-panel/internal/backend"
	"github.com/davidahmann/infraweave-panel/internal/configdoc"
	"github.com/davidahmann/infraweave-panel/internal/customdata"
	"github.com/davidahmann/infraweave-panel/internal/github"
	"github.com/davidahmann/infraweave-panel/internal/gitlab"
	"github.com/davidahmann/infraweave-panel/internal/hostctx"
	"github.com/davidahmann/infraweave-panel/internal/infraweave"
	"github.com/davidahmann/infraweave-panel/internal/journal"
	"github.com/davidahmann/infraweave-panel/internal/metrics"
)

// ConfigSource is the backend configuration the gateway reports and reloads.
type ConfigSource interface {
	Snapshot() backend.State
	Load(ctx context.Context) backend.State
}

type Handler struct {
	Auth       auth.Authenticator
	Backend    ConfigSource
	Host       *hostctx.Tracker
	CustomData *customdata.Client
	Setup      *configdoc.Setup
	Infraweave *infraweave.Client
	GitHub     *github.Client
	GitLab     *gitlab.Client
	Journal    journal.Store
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

var errBadRequest = errors.New("bad request")

// maxBodyBytes bounds request bodies; file contents travel inside them.
const maxBodyBytes = 4 << 20

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if h.Backend != nil {
		resp["config"] = string(h.Backend.Snapshot().Phase)
	}
	writeJSON(w, http.StatusOK, resp)
}

type configResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	backend.Config
	Fingerprint string `json:"fingerprint,omitempty"`
}

func newConfigResponse(s backend.State) configResponse {
	resp := configResponse{State: string(s.Phase)}
	switch s.Phase {
	case backend.PhaseError:
		if s.Err != nil {
			resp.Error = s.Err.Error()
		}
	case backend.PhaseReady:
		resp.Config = s.Config
		if fp, err := s.Config.Fingerprint(); err == nil {
			resp.Fingerprint = fp
		}
	}
	return resp
}

func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Backend == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "backend config not wired"})
		return
	}
	resp := newConfigResponse(h.Backend.Snapshot())
	if resp.Fingerprint != "" {
		etag := strconv.Quote(resp.Fingerprint)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Backend == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "backend config not wired"})
		return
	}
	// A client hanging up must not turn the reload into a failed state.
	state := h.Backend.Load(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, newConfigResponse(state))
}

func (h *Handler) SetupDocument(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		target = configdoc.PlaceholderURL
	}
	doc, err := configdoc.Render(target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

type setupRequest struct {
	URL string `json:"url"`
}

func (h *Handler) decodeSetup(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req setupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		h.writeError(w, r, fmt.Errorf("%w: url is required", errBadRequest))
		return "", false
	}
	return req.URL, true
}

func (h *Handler) SetupValidate(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	target, ok := h.decodeSetup(w, r)
	if !ok {
		return
	}
	var client *http.Client
	if h.Setup != nil {
		client = h.Setup.HTTP
	}
	if err := configdoc.Probe(r.Context(), client, target); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (h *Handler) SetupEntity(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Setup == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "setup not configured"})
		return
	}
	target, ok := h.decodeSetup(w, r)
	if !ok {
		return
	}
	doc, err := h.Setup.Create(r.Context(), target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"document": doc})
}

func (h *Handler) CustomEvents(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.CustomData == nil || h.Host == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "custom events not configured"})
		return
	}
	pc, ok := h.Host.Current()
	if !ok || pc.APIBaseURL == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "host context is not available yet"})
		return
	}
	q := r.URL.Query()
	tag := firstNonEmpty(q.Get("tag"), pc.Tag)
	if tag == "" {
		h.writeError(w, r, fmt.Errorf("%w: tag is required", errBadRequest))
		return
	}
	start, err := parseEventTime("start", q.Get("start"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := parseEventTime("end", q.Get("end"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.CustomData.CustomEvents(r.Context(), pc.APIBaseURL, tag, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// parseEventTime accepts RFC 3339 or the zone-less event layout. Empty means zero.
func parseEventTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(customdata.EventTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339", errBadRequest, field)
	}
	return t, nil
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Journal == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "journal not configured"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		limit = n
	}
	runs, err := h.Journal.ListRuns(limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Journal == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "journal not configured"})
		return
	}
	run, ok := h.Journal.GetRun(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) bool {
	_, err := h.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) Authenticate(r *http.Request) (auth.Claims, error) {
	if h.Auth == nil {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return h.Auth.Authenticate(r)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
