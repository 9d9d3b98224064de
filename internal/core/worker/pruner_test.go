package worker

import (
	"context"
	"testing"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
)

type fakeTraces struct {
	purged chan time.Time
}

func (f *fakeTraces) Append(_ context.Context, _ []domain.Trace) error { return nil }

func (f *fakeTraces) Purge(_ context.Context, cutoff time.Time) (int, error) {
	select {
	case f.purged <- cutoff:
	default:
	}
	return 2, nil
}

func TestPrunerInitialPrune(t *testing.T) {
	traces := &fakeTraces{purged: make(chan time.Time, 1)}
	p := NewPruner(time.Hour, traces)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	select {
	case cutoff := <-traces.purged:
		want := time.Now().Add(-time.Hour)
		if d := cutoff.Sub(want); d < -time.Minute || d > time.Minute {
			t.Errorf("cutoff = %v, want about an hour ago", cutoff)
		}
	case <-time.After(time.Second):
		t.Fatal("pruner did not run the initial prune")
	}
}

func TestPrunerDisabled(t *testing.T) {
	traces := &fakeTraces{purged: make(chan time.Time, 1)}
	p := NewPruner(0, traces)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner with zero retention did not return")
	}
	if len(traces.purged) != 0 {
		t.Error("disabled pruner still purged traces")
	}
}
