package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"buildtime-agent/src/contracts"
)

// MemoryStore is an in-memory implementation of Store.
// Used for local runs, the MCP server and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*contracts.RunReport
	order  []string                                   // run ids in creation order
	builds map[string][]contracts.BuildSummaryMessage // runID -> builds
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*contracts.RunReport),
		builds: make(map[string][]contracts.BuildSummaryMessage),
	}
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *contracts.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; exists {
		return nil
	}
	r := *run
	r.Status = contracts.RunStatusRunning
	s.runs[run.RunID] = &r
	s.order = append(s.order, run.RunID)
	return nil
}

func (s *MemoryStore) SaveBuild(ctx context.Context, build *contracts.BuildSummaryMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[build.RunID]; !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, build.RunID)
	}
	s.builds[build.RunID] = append(s.builds[build.RunID], *build)
	return nil
}

func (s *MemoryStore) CompleteRun(ctx context.Context, report *contracts.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[report.RunID]; !exists {
		s.order = append(s.order, report.RunID)
	}
	r := *report
	if r.Status != contracts.RunStatusFailed {
		r.Status = contracts.RunStatusCompleted
	}
	r.Percentiles = append([]contracts.PercentileRow(nil), report.Percentiles...)
	s.runs[report.RunID] = &r
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*contracts.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	// Return a copy
	runCopy := *run
	return &runCopy, nil
}

func (s *MemoryStore) GetBuilds(ctx context.Context, runID string) ([]contracts.BuildSummaryMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.runs[runID]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	result := make([]contracts.BuildSummaryMessage, len(s.builds[runID]))
	copy(result, s.builds[runID])
	return result, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]contracts.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]contracts.RunReport, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		runs = append(runs, *s.runs[s.order[i]])
	}
	// Creation order breaks ties between equal start times.
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt > runs[j].StartedAt
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close closes the store (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
