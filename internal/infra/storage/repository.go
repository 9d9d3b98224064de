// Package storage defines the persistence contracts shared by all
// checkpoint backends. Implementations live in the file, postgres, memory,
// and redis packages; callers pick one at wiring time and depend only on
// these interfaces.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
)

var (
	// ErrNotFound is returned when no document exists for a dataset yet
	ErrNotFound = errors.New("checkpoint not found")

	// ErrMalformed is returned when a persisted payload does not decode.
	// Loaders treat it as an empty checkpoint, never as a fatal condition.
	ErrMalformed = errors.New("checkpoint payload malformed")
)

// CheckpointRepository persists one document of group results per dataset.
// Save is always a full rewrite: the batch process is the single writer and
// the last rewrite wins.
type CheckpointRepository interface {
	// Load retrieves every group result persisted for the dataset.
	// Returns ErrNotFound for an absent dataset, ErrMalformed (possibly
	// wrapped) for a payload that does not decode.
	Load(ctx context.Context, dataset string) ([]domain.GroupResult, error)

	// Save rewrites the dataset's document with exactly these groups
	Save(ctx context.Context, dataset string, groups []domain.GroupResult) error

	// Delete removes the dataset's document; a missing dataset is not an error
	Delete(ctx context.Context, dataset string) error

	// Datasets lists dataset names that currently have a document
	Datasets(ctx context.Context) ([]string, error)
}

// TraceRepository stores the append-only per-unit trace log
type TraceRepository interface {
	// Append adds trace records; records are immutable once written
	Append(ctx context.Context, traces []domain.Trace) error

	// Purge drops traces older than cutoff and reports how many went
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// Store bundles the repositories one backend provides
type Store interface {
	Checkpoints() CheckpointRepository
	Traces() TraceRepository
	Close() error
}
