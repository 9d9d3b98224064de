// Package checkpoint decides how much of a previous generation run can be
// reused. A checkpoint document is the ordered list of group results for one
// dataset; classification per group yields skip, retry-failed or run-all, and
// merge folds retried outcomes back without touching the rest.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/infra/storage"
)

// Decision says what a generation run must do for one group.
type Decision string

const (
	// DecisionSkip means every unit in the group already has a clean outcome.
	DecisionSkip Decision = "skip"

	// DecisionRetryOnly means only the units listed in RetryKeys need a rerun.
	DecisionRetryOnly Decision = "retry_only"

	// DecisionRunAll means the whole group must be generated from scratch.
	DecisionRunAll Decision = "run_all"
)

// Classification is the outcome of classifying one group against a document.
type Classification struct {
	Decision  Decision
	RetryKeys []string
}

// Classify inspects the stored document for groupKey. A group counts as
// complete only when it holds exactly the expected unit keys; anything else
// is regenerated wholesale rather than patched.
func Classify(groups []domain.GroupResult, groupKey string, expectedKeys []string) Classification {
	var found *domain.GroupResult
	for i := range groups {
		if groups[i].Key == groupKey {
			found = &groups[i]
			break
		}
	}
	if found == nil {
		return Classification{Decision: DecisionRunAll}
	}

	if len(found.Outcomes) != len(expectedKeys) {
		return Classification{Decision: DecisionRunAll}
	}
	for _, key := range expectedKeys {
		if _, ok := found.Outcome(key); !ok {
			return Classification{Decision: DecisionRunAll}
		}
	}

	failed := found.FailedKeys()
	if len(failed) == 0 {
		return Classification{Decision: DecisionSkip}
	}
	return Classification{Decision: DecisionRetryOnly, RetryKeys: failed}
}

// Merge replaces outcomes in previous with fresh ones carrying the same unit
// key. Order of previous is preserved; fresh outcomes for unknown keys are
// appended.
func Merge(previous, fresh []domain.Outcome) []domain.Outcome {
	merged := make([]domain.Outcome, len(previous))
	copy(merged, previous)

	index := make(map[string]int, len(merged))
	for i, o := range merged {
		index[o.UnitKey] = i
	}

	for _, o := range fresh {
		if i, ok := index[o.UnitKey]; ok {
			merged[i] = o
			continue
		}
		index[o.UnitKey] = len(merged)
		merged = append(merged, o)
	}
	return merged
}

// Upsert replaces the group with the same key in place, or appends it when
// the document has no such group yet.
func Upsert(groups []domain.GroupResult, g domain.GroupResult) []domain.GroupResult {
	for i := range groups {
		if groups[i].Key == g.Key {
			groups[i] = g
			return groups
		}
	}
	return append(groups, g)
}

// Manager loads and persists checkpoint documents through a repository.
type Manager struct {
	repo storage.CheckpointRepository
}

// NewManager creates a checkpoint manager over the given repository.
func NewManager(repo storage.CheckpointRepository) *Manager {
	return &Manager{repo: repo}
}

// Load returns the stored document for a dataset. A missing document is an
// empty one. A malformed document is logged and treated as empty so a stale
// or hand-edited file can never block generation; any other storage failure
// is returned as-is.
func (m *Manager) Load(ctx context.Context, dataset string) ([]domain.GroupResult, error) {
	groups, err := m.repo.Load(ctx, dataset)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.GroupResult{}, nil
	}
	if errors.Is(err, storage.ErrMalformed) {
		slog.Warn("checkpoint unreadable, starting fresh", "dataset", dataset, "error", err)
		return []domain.GroupResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return groups, nil
}

// Save rewrites the full document for a dataset.
func (m *Manager) Save(ctx context.Context, dataset string, groups []domain.GroupResult) error {
	if err := m.repo.Save(ctx, dataset, groups); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Reset drops the stored document for a dataset.
func (m *Manager) Reset(ctx context.Context, dataset string) error {
	if err := m.repo.Delete(ctx, dataset); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}

// Datasets lists datasets with a stored document.
func (m *Manager) Datasets(ctx context.Context) ([]string, error) {
	return m.repo.Datasets(ctx)
}
