package types

import "encoding/json"

// PluginContext is the record the host platform hands to an embedded panel.
type PluginContext struct {
	APIBaseURL string            `json:"apiBaseUrl"`
	Entity     json.RawMessage   `json:"entity,omitempty"`
	Location   string            `json:"location,omitempty"`
	Tag        string            `json:"tag,omitempty"`
	User       PluginUser        `json:"user"`
	Style      map[string]string `json:"style,omitempty"`
	Theme      string            `json:"theme,omitempty"`
}

type PluginUser struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// CustomDataItem is one key/value entry attached to a catalog entity.
type CustomDataItem struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
	DateUpdated string `json:"dateUpdated,omitempty"`
}

// CustomEvent is one timeline event attached to a catalog entity.
type CustomEvent struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type,omitempty"`
	Timestamp   string         `json:"timestamp"`
	URL         string         `json:"url,omitempty"`
	CustomData  map[string]any `json:"customData,omitempty"`
}
