// Package memory keeps checkpoints and traces in process memory. It backs
// tests and dry runs where persistence across restarts is not wanted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/infra/storage"
)

type Store struct {
	sets   map[string][]domain.GroupResult
	traces []domain.Trace
	mu     sync.RWMutex
}

func New() *Store {
	return &Store{sets: make(map[string][]domain.GroupResult)}
}

func (s *Store) Checkpoints() storage.CheckpointRepository { return &CheckpointRepo{store: s} }
func (s *Store) Traces() storage.TraceRepository           { return &TraceRepo{store: s} }
func (s *Store) Close() error                              { return nil }

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *Store
}

func (r *CheckpointRepo) Load(ctx context.Context, dataset string) ([]domain.GroupResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	groups, ok := r.store.sets[dataset]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneGroups(groups), nil
}

func (r *CheckpointRepo) Save(ctx context.Context, dataset string, groups []domain.GroupResult) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.sets[dataset] = cloneGroups(groups)
	return nil
}

func (r *CheckpointRepo) Delete(ctx context.Context, dataset string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.sets, dataset)
	return nil
}

func (r *CheckpointRepo) Datasets(ctx context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	names := make([]string, 0, len(r.store.sets))
	for name := range r.store.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// cloneGroups copies the group and outcome slices so callers cannot mutate
// stored state through returned values.
func cloneGroups(groups []domain.GroupResult) []domain.GroupResult {
	out := make([]domain.GroupResult, len(groups))
	for i, g := range groups {
		out[i] = g
		out[i].Outcomes = make([]domain.Outcome, len(g.Outcomes))
		copy(out[i].Outcomes, g.Outcomes)
	}
	return out
}

// -----------------------------------------------------------------------------
// Trace Repository
// -----------------------------------------------------------------------------

type TraceRepo struct {
	store *Store
}

func (r *TraceRepo) Append(ctx context.Context, traces []domain.Trace) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.traces = append(r.store.traces, traces...)
	return nil
}

func (r *TraceRepo) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.traces[:0]
	removed := 0
	for _, t := range r.store.traces {
		if t.StartedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	r.store.traces = kept
	return removed, nil
}

// All returns a copy of every recorded trace, oldest first.
func (r *TraceRepo) All() []domain.Trace {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Trace, len(r.store.traces))
	copy(out, r.store.traces)
	return out
}
