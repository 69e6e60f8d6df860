package infraweave

import (
	"context"
	"encoding/json"

	"github.com/davidahmann/infraweave-panel/pkg/types"
)

// trackedVersion is the part of a module or stack payload grouping reads.
type trackedVersion struct {
	Module  string `json:"module"`
	Track   string `json:"track"`
	Version string `json:"version"`
}

// GroupByTrack collapses module (or stack) versions into one row per module
// with the version seen on each track; later entries overwrite earlier ones
// and rows keep the order modules first appear in. Entries whose module,
// track or version is not a string are skipped.
func GroupByTrack(modules []json.RawMessage) []types.GroupedModule {
	index := map[string]int{}
	out := []types.GroupedModule{}
	for _, raw := range modules {
		var m trackedVersion
		if err := json.Unmarshal(raw, &m); err != nil || m.Module == "" {
			continue
		}
		i, ok := index[m.Module]
		if !ok {
			i = len(out)
			index[m.Module] = i
			out = append(out, types.GroupedModule{Module: m.Module})
		}
		row := &out[i]
		switch m.Track {
		case types.TrackDev:
			row.DevVersion = m.Version
		case types.TrackAlpha:
			row.AlphaVersion = m.Version
		case types.TrackBeta:
			row.BetaVersion = m.Version
		case types.TrackStable:
			row.StableVersion = m.Version
		}
	}
	return out
}

func (c *Client) GroupedModules(ctx context.Context) ([]types.GroupedModule, error) {
	modules, err := c.Modules(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByTrack(modules), nil
}

func (c *Client) GroupedStacks(ctx context.Context) ([]types.GroupedModule, error) {
	stacks, err := c.Stacks(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByTrack(stacks), nil
}
