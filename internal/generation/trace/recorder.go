// Package trace collects one record per processed unit and flushes them to a
// repository in per-group batches. Trace persistence is diagnostics only, so
// a failing sink is logged and never surfaces to the generation path.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/generation/metrics"
	"github.com/edukit/coursegen/internal/infra/storage"
)

// Recorder buffers traces until the next Flush.
type Recorder struct {
	mu      sync.Mutex
	sink    storage.TraceRepository
	pending []domain.Trace
	summary domain.RunSummary
}

// NewRecorder creates a recorder writing to sink. sink may be nil when traces
// should only feed the run summary and the log.
func NewRecorder(runID string, sink storage.TraceRepository) *Recorder {
	return &Recorder{
		sink: sink,
		summary: domain.RunSummary{
			RunID:     runID,
			StartedAt: time.Now(),
		},
	}
}

// Record buffers one trace, folds it into the run summary and writes the
// per-unit log line.
func (r *Recorder) Record(t domain.Trace) {
	r.mu.Lock()
	t.RunID = r.summary.RunID
	r.pending = append(r.pending, t)
	r.summary.Add(t)
	r.mu.Unlock()

	result := "ok"
	if t.FellBack {
		result = "fallback"
	}
	metrics.UnitsProcessed.WithLabelValues(t.Stage, result).Inc()
	metrics.UnitAttempts.WithLabelValues(t.Stage).Observe(float64(t.Attempts))
	metrics.UnitDuration.WithLabelValues(t.Stage).Observe(float64(t.DurationMS) / 1000)

	if t.FellBack {
		slog.Warn("unit fell back",
			"stage", t.Stage,
			"unit", t.UnitKey,
			"attempts", t.Attempts,
			"duration_ms", t.DurationMS,
			"error", t.Error)
		return
	}
	slog.Info("unit done",
		"stage", t.Stage,
		"unit", t.UnitKey,
		"attempts", t.Attempts,
		"duration_ms", t.DurationMS,
		"output_bytes", t.OutputBytes)
}

// Skip counts a unit that was satisfied from the checkpoint without running.
func (r *Recorder) Skip(n int) {
	r.mu.Lock()
	r.summary.UnitsTotal += n
	r.summary.UnitsSkipped += n
	r.mu.Unlock()
}

// Flush writes buffered traces to the sink. The batch is dropped either way;
// outcomes live in the checkpoint document, traces are best effort.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 || r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, batch); err != nil {
		slog.Error("failed to persist traces", "count", len(batch), "error", err)
	}
}

// Summary returns a snapshot of the counters folded so far.
func (r *Recorder) Summary() domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.Duration = time.Since(s.StartedAt)
	s.FallbackUnits = append([]string(nil), s.FallbackUnits...)
	return s
}

// CountCourse bumps the processed course counter.
func (r *Recorder) CountCourse() {
	r.mu.Lock()
	r.summary.Courses++
	r.mu.Unlock()
}
