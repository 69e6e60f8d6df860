package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/infraweave-panel/internal/httpx"
)

type pageServer struct {
	mu       sync.Mutex
	pages    [][]int
	wrap     string
	requests []string
	queries  []map[string]string
}

func (p *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, r.URL.Query().Get("page"))
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	p.queries = append(p.queries, q)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	items := []int{}
	if page < len(p.pages) {
		items = p.pages[page]
	}
	if p.wrap == "" {
		_ = json.NewEncoder(w).Encode(items)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{p.wrap: items})
}

func decodeInts(t *testing.T, raw []json.RawMessage) []int {
	t.Helper()
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		var v int
		require.NoError(t, json.Unmarshal(r, &v))
		out = append(out, v)
	}
	return out
}

func TestFetchDrainsPagesInOrder(t *testing.T) {
	ps := &pageServer{pages: [][]int{{1, 2}, {3}, {4, 5, 6}}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	f := New(srv.Client(), nil)
	raw, err := f.Fetch(context.Background(), srv.URL+"/catalog/tag/custom-data", Options{})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, decodeInts(t, raw))
	assert.Equal(t, []string{"0", "1", "2", "3"}, ps.requests)
}

func TestFetchEmptyFirstPage(t *testing.T) {
	ps := &pageServer{}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	raw, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/custom-data", Options{})
	require.NoError(t, err)
	assert.Empty(t, raw)
	assert.NotNil(t, raw)
	assert.Equal(t, []string{"0"}, ps.requests)
}

func TestFetchUsesListKeyTable(t *testing.T) {
	ps := &pageServer{pages: [][]int{{7}}, wrap: "events"}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	raw, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/catalog/x/custom-events", Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, decodeInts(t, raw))
}

func TestFetchUnknownEndpointFallsBackToLastSegment(t *testing.T) {
	ps := &pageServer{pages: [][]int{{1}, {2}}, wrap: "widgets"}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	raw, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/api/widgets", Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, decodeInts(t, raw))
}

func TestFetchExplicitListKeyWins(t *testing.T) {
	ps := &pageServer{pages: [][]int{{9}}, wrap: "items"}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	key := Key("items")
	raw, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/custom-data", Options{ListKey: &key})
	require.NoError(t, err)
	assert.Equal(t, []int{9}, decodeInts(t, raw))
}

func TestFetchMissingListKeyTerminates(t *testing.T) {
	ps := &pageServer{pages: [][]int{{1}}, wrap: "other"}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	raw, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/custom-events", Options{})
	require.NoError(t, err)
	assert.Empty(t, raw)
	assert.Len(t, ps.requests, 1)
}

func TestFetchMergesParams(t *testing.T) {
	ps := &pageServer{}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	_, err := New(srv.Client(), nil).Fetch(context.Background(),
		srv.URL+"/custom-data?startTime=2025-01-01T00:00:00&page=9&keep=1",
		Options{URLParams: map[string]string{"startTime": "override", "extra": "x"}})
	require.NoError(t, err)

	require.Len(t, ps.queries, 1)
	assert.Equal(t, map[string]string{
		"startTime": "override",
		"keep":      "1",
		"extra":     "x",
		"page":      "0",
	}, ps.queries[0])
}

func TestFetchDropsFragment(t *testing.T) {
	ps := &pageServer{pages: [][]int{{1}, {2}}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	raw, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/catalog/x/custom-data?a=1#frag", Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, decodeInts(t, raw))
	assert.Equal(t, []string{"0", "1", "2"}, ps.requests)
	assert.Equal(t, "1", ps.queries[0]["a"])
}

func TestFetchPageLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer srv.Close()

	f := New(srv.Client(), nil)
	f.MaxPages = 3
	_, err := f.Fetch(context.Background(), srv.URL+"/custom-data", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPageLimit))
}

func TestFetchHTTPErrorPropagates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer srv.Close()

	raw, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/custom-data", Options{})
	require.Error(t, err)
	assert.Nil(t, raw)

	var apiErr *httpx.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestFetchInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{invalid`))
	}))
	defer srv.Close()

	_, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/custom-data", Options{})
	require.Error(t, err)
}

func TestFetchNonArrayPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events":"nope"}`))
	}))
	defer srv.Close()

	_, err := New(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/custom-events", Options{})
	require.Error(t, err)
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.Client(), nil).Fetch(ctx, srv.URL+"/custom-data", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFetchAsDecodesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "0" {
			_, _ = w.Write([]byte(`[{"key":"a","value":"x"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	type item struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	items, err := FetchAs[item](context.Background(), New(srv.Client(), nil), srv.URL+"/custom-data", Options{})
	require.NoError(t, err)
	assert.Equal(t, []item{{Key: "a", Value: "x"}}, items)
}

func TestConcurrentFetchesKeepIndependentCursors(t *testing.T) {
	ps := &pageServer{pages: [][]int{{1}, {2}}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	f := New(srv.Client(), nil)
	var wg sync.WaitGroup
	results := make([][]json.RawMessage, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.Fetch(context.Background(), fmt.Sprintf("%s/custom-data?n=%d", srv.URL, i), Options{})
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []int{1, 2}, decodeInts(t, results[i]))
	}
	assert.Len(t, ps.requests, 12)
}
