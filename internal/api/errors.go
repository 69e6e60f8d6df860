package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/davidahmann/infraweave-panel/internal/configdoc"
	"github.com/davidahmann/infraweave-panel/internal/httpx"
	"github.com/davidahmann/infraweave-panel/internal/infraweave"
	"github.com/davidahmann/infraweave-panel/internal/paginate"
	"github.com/davidahmann/infraweave-panel/internal/rest"
	"github.com/davidahmann/infraweave-panel/internal/saga"
)

// statusFor maps a client error onto the gateway's response status.
func statusFor(err error) int {
	var apiErr *httpx.APIError
	switch {
	case errors.Is(err, rest.ErrConfigLoading), errors.Is(err, rest.ErrConfigFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, rest.ErrNotConfigured):
		return http.StatusConflict
	case errors.As(err, &apiErr), errors.Is(err, paginate.ErrPageLimit):
		return http.StatusBadGateway
	case errors.Is(err, errBadRequest),
		errors.Is(err, rest.ErrInvalidRequest),
		errors.Is(err, infraweave.ErrMissingParameter):
		return http.StatusBadRequest
	case errors.Is(err, configdoc.ErrUnreachable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) map[string]any {
	body := map[string]any{"error": err.Error()}
	var apiErr *httpx.APIError
	if errors.As(err, &apiErr) {
		body["upstream"] = apiErr.Backend
		body["upstream_status"] = apiErr.StatusCode
		body["upstream_body"] = apiErr.Body
	}
	var stepErr *saga.StepError
	if errors.As(err, &stepErr) {
		body["failed_step"] = stepErr.Step
		applied := stepErr.Applied
		if applied == nil {
			applied = []string{}
		}
		body["applied_steps"] = applied
	}
	return body
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody(err))
}
