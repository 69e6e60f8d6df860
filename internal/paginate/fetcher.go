// Package paginate drains page-indexed collection endpoints.
package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/davidahmann/infraweave-panel/internal/httpx"
	"github.com/davidahmann/infraweave-panel/internal/metrics"
)

var ErrPageLimit = errors.New("pagination page limit reached")

// ListKey says where a page's items live in the response body.
type ListKey struct {
	// Key is the property holding the items. Ignored when Bare is set.
	Key string
	// Bare means the response body is itself the item array.
	Bare bool
}

func Key(name string) ListKey { return ListKey{Key: name} }

var Bare = ListKey{Bare: true}

// DefaultListKeys maps the last path segment of known endpoints to their list key.
var DefaultListKeys = map[string]ListKey{
	"custom-data":   Bare,
	"custom-events": Key("events"),
	"catalog":       Key("entities"),
	"audit-logs":    Key("logs"),
}

type Options struct {
	// ListKey overrides the table lookup when set.
	ListKey   *ListKey
	URLParams map[string]string
}

type Fetcher struct {
	HTTP     *http.Client
	ListKeys map[string]ListKey
	// MaxPages bounds the number of requests per fetch; 0 means unbounded.
	MaxPages int
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

func New(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{HTTP: client, ListKeys: DefaultListKeys, Logger: logger}
}

// Fetch requests page 0, 1, 2, ... of rawURL until a page is missing or empty
// and returns every item in page order.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) ([]json.RawMessage, error) {
	reqURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	endpoint := path.Base(reqURL.Path)

	listKey := f.listKeyFor(endpoint)
	if opts.ListKey != nil {
		listKey = *opts.ListKey
	}

	baseParams := reqURL.Query()
	reqURL.RawQuery = ""
	reqURL.Fragment, reqURL.RawFragment = "", ""

	items := []json.RawMessage{}
	for page := 0; ; page++ {
		if f.MaxPages > 0 && page >= f.MaxPages {
			return nil, fmt.Errorf("%w: %d pages from %s", ErrPageLimit, page, reqURL.String())
		}

		params := url.Values{}
		for k, v := range baseParams {
			params[k] = append([]string(nil), v...)
		}
		for k, v := range opts.URLParams {
			params.Set(k, v)
		}
		params.Set("page", strconv.Itoa(page))

		pageURL := *reqURL
		pageURL.RawQuery = params.Encode()
		fetched, err := f.fetchPage(ctx, pageURL.String(), endpoint, listKey)
		if err != nil {
			return nil, err
		}
		f.Metrics.PageFetched(endpoint)
		if len(fetched) == 0 {
			f.Logger.Debug("pagination finished", "endpoint", endpoint, "pages", page+1, "items", len(items))
			return items, nil
		}
		items = append(items, fetched...)
	}
}

// FetchAs decodes every item fetched from rawURL into T.
func FetchAs[T any](ctx context.Context, f *Fetcher, rawURL string, opts Options) ([]T, error) {
	raw, err := f.Fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for i, item := range raw {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *Fetcher) listKeyFor(endpoint string) ListKey {
	table := f.ListKeys
	if table == nil {
		table = DefaultListKeys
	}
	if key, ok := table[endpoint]; ok {
		return key
	}
	f.Logger.Warn("unknown paginated endpoint, using last path segment as list key", "endpoint", endpoint)
	return Key(endpoint)
}

func (f *Fetcher) fetchPage(ctx context.Context, pageURL string, endpoint string, listKey ListKey) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if !httpx.OK(resp.StatusCode) {
		return nil, httpx.NewAPIError("", pageURL, resp)
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s: %w", pageURL, err)
	}

	if !listKey.Bare {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("decode %s: %w", pageURL, err)
		}
		inner, ok := wrapper[listKey.Key]
		if !ok {
			return nil, nil
		}
		body = inner
	}

	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode %s page of %s: %w", endpoint, pageURL, err)
	}
	return page, nil
}
