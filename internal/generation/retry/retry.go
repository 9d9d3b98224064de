// Package retry bounds and paces repeated attempts against the completion
// service. Transient failures (rate limiting, quota, timeouts) back off
// exponentially with jitter; everything else propagates immediately.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

const (
	DefaultMaxRetries = 6
	DefaultBaseDelay  = 5 * time.Second
	DefaultJitterMax  = time.Second
)

// transientMarkers are matched case-insensitively against error text.
// Substring matching is deliberate: provider SDKs and raw HTTP errors
// disagree on types, but all of them put the quota story in the message.
var transientMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"quota",
	"resource exhausted",
	"timeout",
	"timed out",
	"deadline exceeded",
}

// Transient reports whether err is expected to resolve itself by waiting.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Policy configures retry bounds for one class of operation.
type Policy struct {
	MaxRetries int           // retries allowed after the first attempt
	BaseDelay  time.Duration // doubled on every consecutive retry
	MaxDelay   time.Duration // per-sleep cap, 0 means uncapped
	JitterMax  time.Duration // uniform random extra sleep, desynchronizes workers
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		JitterMax:  DefaultJitterMax,
	}
}

// Do runs op until it succeeds, fails non-transiently, or exhausts the retry
// budget. It returns the number of attempts consumed together with the
// terminal error (nil on success). No delay is scheduled after the final
// attempt; cancellation during a backoff sleep returns ctx.Err().
func (p Policy) Do(ctx context.Context, label string, op func(context.Context) error) (int, error) {
	attempts := 0
	for {
		attempts++
		err := op(ctx)
		if err == nil {
			return attempts, nil
		}
		if !Transient(err) || attempts > p.MaxRetries {
			return attempts, err
		}

		delay := p.backoff(attempts - 1)
		slog.Warn("transient failure, backing off",
			"op", label,
			"attempt", attempts,
			"delay", delay,
			"err", err)

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff computes BaseDelay * 2^retryIndex plus jitter, capped at MaxDelay.
func (p Policy) backoff(retryIndex int) time.Duration {
	if retryIndex > 32 {
		retryIndex = 32
	}
	delay := p.BaseDelay << uint(retryIndex)
	if delay < 0 {
		delay = p.MaxDelay
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(p.JitterMax)))
	}
	return delay
}
