package journal

import (
	"sort"
	"sync"
)

type InMemoryStore struct {
	mu   sync.Mutex
	runs map[string]Run
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]Run)}
}

func (s *InMemoryStore) PutRun(run Run) error {
	if run.RunID == "" {
		return ErrMissingRunID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run.AppliedSteps = append([]string(nil), run.AppliedSteps...)
	s.runs[run.RunID] = run
	return nil
}

func (s *InMemoryStore) GetRun(runID string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	return run, ok
}

func (s *InMemoryStore) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.Lock()
	out := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].RunID < out[j].RunID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
