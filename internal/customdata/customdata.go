// Package customdata reads key/value custom data and custom events attached
// to catalog entities.
package customdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/davidahmann/infraweave-panel/internal/httpx"
	"github.com/davidahmann/infraweave-panel/internal/paginate"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

// EventTimeLayout is the second-precision UTC layout the catalog expects for
// startTime and endTime.
const EventTimeLayout = "2006-01-02T15:04:05"

const defaultEventWindow = 7 * 24 * time.Hour

// ListToDict converts a custom-data item list into a key -> value mapping.
//
// Input that is not a list yields an empty map. Items that are not objects,
// have no non-empty string key, or whose value is falsy (nil, false, 0, "",
// NaN) are skipped, so a stored 0 or false reads as unset. Later duplicates
// overwrite earlier ones.
func ListToDict(items any) map[string]any {
	out := map[string]any{}
	list, ok := items.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, ok := obj["key"].(string)
		if !ok || key == "" {
			continue
		}
		value := obj["value"]
		if !truthy(value) {
			continue
		}
		out[key] = value
	}
	return out
}

func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case float64:
		return value != 0 && !math.IsNaN(value)
	case float32:
		return value != 0 && !math.IsNaN(float64(value))
	case int:
		return value != 0
	case int64:
		return value != 0
	case json.Number:
		f, err := value.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	default:
		return true
	}
}

// Items converts typed items into the generic list ListToDict accepts.
func Items(items []types.CustomDataItem) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{"key": item.Key, "value": item.Value})
	}
	return out
}

type Client struct {
	Fetcher *paginate.Fetcher
}

func NewClient(fetcher *paginate.Fetcher) *Client {
	return &Client{Fetcher: fetcher}
}

// CustomData fetches every custom-data item of entityTag as decoded JSON values.
func (c *Client) CustomData(ctx context.Context, apiBaseURL string, entityTag string) ([]any, error) {
	endpoint := fmt.Sprintf("/catalog/%s/custom-data", url.PathEscape(entityTag))
	raw, err := c.Fetcher.Fetch(ctx, httpx.JoinURL(apiBaseURL, endpoint), paginate.Options{})
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(raw))
	for i, item := range raw {
		var v any
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, fmt.Errorf("decode custom data item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// CustomEvents fetches the custom events of entityTag between start and end.
// A zero start means seven days before now; a zero end leaves the window open.
func (c *Client) CustomEvents(ctx context.Context, apiBaseURL string, entityTag string, start time.Time, end time.Time) ([]types.CustomEvent, error) {
	if start.IsZero() {
		start = time.Now().Add(-defaultEventWindow)
	}
	params := url.Values{}
	params.Set("startTime", start.UTC().Format(EventTimeLayout))
	if !end.IsZero() {
		params.Set("endTime", end.UTC().Format(EventTimeLayout))
	}
	endpoint := fmt.Sprintf("/catalog/%s/custom-events?%s", url.PathEscape(entityTag), params.Encode())
	return paginate.FetchAs[types.CustomEvent](ctx, c.Fetcher, httpx.JoinURL(apiBaseURL, endpoint), paginate.Options{})
}
