// Package httpx holds the HTTP plumbing shared by every outbound client:
// URL joining, the transport error type and instrumented clients.
package httpx

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/davidahmann/infraweave-panel/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

// APIError is returned for any non-2xx upstream response. Body is the raw
// response text; upstream error shapes are not part of the contract.
type APIError struct {
	Backend    string
	Endpoint   string
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	prefix := "API Error"
	if e.Backend != "" {
		prefix = e.Backend + " API Error"
	}
	return fmt.Sprintf("%s: %d %s - %s\n%s", prefix, e.StatusCode, e.Status, e.Endpoint, e.Body)
}

// NewAPIError drains resp.Body into an APIError.
func NewAPIError(backend string, endpoint string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	return &APIError{
		Backend:    backend,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Body:       string(body),
	}
}

func statusText(resp *http.Response) string {
	// resp.Status is "404 Not Found"; keep only the reason phrase.
	if _, reason, ok := strings.Cut(resp.Status, " "); ok {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// OK reports whether code is a 2xx status.
func OK(code int) bool {
	return code >= 200 && code < 300
}

// JoinURL joins base and endpoint with exactly one slash between them.
func JoinURL(base string, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

type ClientOptions struct {
	Backend string
	Timeout time.Duration
	// Base is the innermost transport; http.DefaultTransport when nil.
	Base    http.RoundTripper
	Metrics *metrics.Collector
}

// NewClient builds an http.Client that is traced and counted under Backend.
func NewClient(opts ClientOptions) *http.Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := opts.Metrics.InstrumentTransport(opts.Backend, base)
	transport = otelhttp.NewTransport(transport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return opts.Backend + " " + r.Method
		}),
	)
	return &http.Client{Timeout: timeout, Transport: transport}
}
