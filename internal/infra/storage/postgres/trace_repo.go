package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/generation/metrics"
)

// TraceRepo implements storage.TraceRepository using PostgreSQL.
type TraceRepo struct {
	db *DB
}

// NewTraceRepo creates a new PostgreSQL trace repository.
func NewTraceRepo(db *DB) *TraceRepo {
	return &TraceRepo{db: db}
}

// Append inserts traces in a single transaction.
func (r *TraceRepo) Append(ctx context.Context, traces []domain.Trace) error {
	if len(traces) == 0 {
		return nil
	}

	metrics.DBBatchSize.WithLabelValues("append_traces").Observe(float64(len(traces)))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO traces (
			run_id, stage, group_key, unit_key, attempts, duration_ms,
			input_bytes, output_bytes, input_tokens, output_tokens,
			fell_back, error, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range traces {
		_, err := stmt.ExecContext(ctx,
			t.RunID,
			t.Stage,
			t.GroupKey,
			t.UnitKey,
			t.Attempts,
			t.DurationMS,
			t.InputBytes,
			t.OutputBytes,
			t.InputTokens,
			t.OutputTokens,
			t.FellBack,
			t.Error,
			t.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trace: %w", err)
		}
	}

	return tx.Commit()
}

// Purge deletes traces started before the cutoff and reports how many rows
// were removed.
func (r *TraceRepo) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM traces WHERE started_at < $1`

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge traces: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged traces: %w", err)
	}
	return int(n), nil
}
