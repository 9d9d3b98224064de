package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/edukit/coursegen/internal/generation/metrics"
	"github.com/edukit/coursegen/internal/infra/storage"
)

// Pruner deletes old traces based on retention policy.
type Pruner struct {
	retention time.Duration
	traces    storage.TraceRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, traces storage.TraceRepository) *Pruner {
	return &Pruner{
		retention: retention,
		traces:    traces,
	}
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of the retention period, between 1 minute and 1 hour.
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	removed, err := p.traces.Purge(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune traces", "error", err)
		return
	}
	if removed > 0 {
		metrics.TracesPurged.Add(float64(removed))
		slog.Info("pruned old traces", "removed", removed, "cutoff", cutoff)
	}
}
