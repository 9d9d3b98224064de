// Package runner executes a batch of independent work items across a bounded
// pool of workers while preserving input order in the results.
package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidWorkers is returned before any dispatch when the configured
// worker count is not positive.
var ErrInvalidWorkers = errors.New("worker count must be positive")

// Config bounds one Map invocation.
type Config struct {
	// Workers is the maximum number of concurrent workers.
	Workers int

	// Pacing is a delay each worker inserts before its second and every
	// later claim. Pacing is per worker, not global: total request rate
	// scales with Workers rather than being capped by a shared limiter.
	Pacing time.Duration
}

// Map runs fn once per element of in, at most cfg.Workers at a time, and
// returns outputs positionally aligned with in: out[i] holds fn's result for
// in[i] regardless of which worker ran it or when it finished.
//
// Workers pull the next index from a shared cursor instead of taking static
// slices, so one slow item never strands the rest of the pool idle. fn is
// expected to resolve its own failures into a value; Map itself fails only
// on invalid config or a cancelled context, and a cancelled run's partial
// output must be discarded by the caller.
func Map[In, Out any](ctx context.Context, cfg Config, in []In, fn func(ctx context.Context, idx int, item In) Out) ([]Out, error) {
	if cfg.Workers <= 0 {
		return nil, ErrInvalidWorkers
	}
	if len(in) == 0 {
		return []Out{}, nil
	}

	workers := min(cfg.Workers, len(in))
	out := make([]Out, len(in))

	var cursor atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			claimed := 0
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				idx := int(cursor.Add(1)) - 1
				if idx >= len(in) {
					return nil
				}
				if claimed > 0 && cfg.Pacing > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(cfg.Pacing):
					}
				}
				out[idx] = fn(ctx, idx, in[idx])
				claimed++
			}
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
