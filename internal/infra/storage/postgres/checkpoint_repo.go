package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

type checkpointRow struct {
	Dataset   string    `db:"dataset"`
	Groups    []byte    `db:"groups"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Load retrieves the checkpoint document for a dataset.
func (r *CheckpointRepo) Load(ctx context.Context, dataset string) ([]domain.GroupResult, error) {
	query := `
		SELECT dataset, groups, updated_at
		FROM checkpoints
		WHERE dataset = $1
	`

	var row checkpointRow
	err := r.db.GetContext(ctx, &row, query, dataset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var groups []domain.GroupResult
	if err := json.Unmarshal(row.Groups, &groups); err != nil {
		return nil, fmt.Errorf("%w: dataset %s: %v", storage.ErrMalformed, dataset, err)
	}
	return groups, nil
}

// Save rewrites the full checkpoint document for a dataset.
func (r *CheckpointRepo) Save(ctx context.Context, dataset string, groups []domain.GroupResult) error {
	if groups == nil {
		groups = []domain.GroupResult{}
	}
	doc, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	query := `
		INSERT INTO checkpoints (dataset, groups, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (dataset) DO UPDATE SET
			groups = EXCLUDED.groups,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, dataset, doc); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint document for a dataset.
func (r *CheckpointRepo) Delete(ctx context.Context, dataset string) error {
	query := `DELETE FROM checkpoints WHERE dataset = $1`
	if _, err := r.db.ExecContext(ctx, query, dataset); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Datasets lists datasets that have a stored checkpoint.
func (r *CheckpointRepo) Datasets(ctx context.Context) ([]string, error) {
	query := `SELECT dataset FROM checkpoints ORDER BY dataset`

	var names []string
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return names, nil
}
