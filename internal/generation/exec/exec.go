// Package exec turns one generation unit into exactly one outcome and one
// trace. A unit can exhaust its transport retries, fail parsing after every
// repair re-call or panic in a handler; all of those end in a deterministic
// fallback outcome, never in an error reaching the worker pool.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/generation/retry"
	"github.com/edukit/coursegen/internal/generation/trace"
	"github.com/edukit/coursegen/internal/infra/genai"
)

// DefaultRepairRetries is how many immediate re-calls a unit gets when the
// model answered but the answer would not parse. These re-calls skip the
// transport backoff; a parse failure says nothing about provider load.
const DefaultRepairRetries = 2

// CallFunc performs one model call and returns the raw completion text.
type CallFunc func(ctx context.Context) (string, genai.Usage, error)

// DecodeFunc turns raw completion text into the unit's JSON value.
type DecodeFunc func(raw string) (json.RawMessage, error)

// FallbackFunc builds the deterministic stand-in value for a unit whose
// generation failed for good.
type FallbackFunc func(lastErr error) json.RawMessage

// Unit is one generation work item.
type Unit struct {
	Key        string
	Stage      string
	Label      string
	InputBytes int
	Call       CallFunc
	Decode     DecodeFunc
	Fallback   FallbackFunc
}

// Executor processes units under a shared retry policy.
type Executor struct {
	policy        retry.Policy
	repairRetries int
	recorder      *trace.Recorder
}

// NewExecutor creates an executor. A negative repairRetries means none.
func NewExecutor(policy retry.Policy, repairRetries int, recorder *trace.Recorder) *Executor {
	return &Executor{
		policy:        policy,
		repairRetries: max(repairRetries, 0),
		recorder:      recorder,
	}
}

// unitState carries what the trace needs across the retry loops.
type unitState struct {
	attempts    int
	usage       genai.Usage
	outputBytes int
	lastErr     error
}

// Process runs one unit to its outcome. It never returns an error; a unit
// that cannot be generated gets its fallback value with FellBack set.
func (e *Executor) Process(ctx context.Context, groupKey string, u Unit) domain.Outcome {
	start := time.Now()
	st := &unitState{}

	out := e.run(ctx, u, st)

	t := domain.Trace{
		Stage:        u.Stage,
		GroupKey:     groupKey,
		UnitKey:      u.Key,
		Attempts:     st.attempts,
		DurationMS:   time.Since(start).Milliseconds(),
		InputBytes:   u.InputBytes,
		OutputBytes:  st.outputBytes,
		InputTokens:  st.usage.InputTokens,
		OutputTokens: st.usage.OutputTokens,
		FellBack:     out.FellBack,
		Error:        out.Reason,
		StartedAt:    start,
	}
	if e.recorder != nil {
		e.recorder.Record(t)
	}
	return out
}

// run executes the call/decode loops. The deferred recover keeps a panicking
// handler inside the unit boundary.
func (e *Executor) run(ctx context.Context, u Unit, st *unitState) (out domain.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			st.lastErr = fmt.Errorf("unit panic: %v", rec)
			slog.Error("unit handler panicked", "unit", u.Key, "panic", rec)
			out = e.fellBack(u, st)
		}
	}()

	var value json.RawMessage
	repairLeft := e.repairRetries

	for {
		var raw string
		attempts, err := e.policy.Do(ctx, u.Key, func(ctx context.Context) error {
			text, usage, callErr := u.Call(ctx)
			st.usage.InputTokens += usage.InputTokens
			st.usage.OutputTokens += usage.OutputTokens
			if callErr != nil {
				return callErr
			}
			raw = text
			return nil
		})
		st.attempts += attempts
		if err != nil {
			st.lastErr = err
			return e.fellBack(u, st)
		}

		st.outputBytes = len(raw)
		value, err = u.Decode(raw)
		if err == nil {
			st.lastErr = nil
			break
		}

		st.lastErr = err
		if repairLeft == 0 {
			return e.fellBack(u, st)
		}
		repairLeft--
		slog.Warn("completion did not parse, calling again",
			"unit", u.Key,
			"remaining", repairLeft+1,
			"error", err)
	}

	return domain.Outcome{UnitKey: u.Key, Value: value}
}

func (e *Executor) fellBack(u Unit, st *unitState) domain.Outcome {
	return domain.Outcome{
		UnitKey:  u.Key,
		Value:    safeFallback(u.Fallback, st.lastErr),
		FellBack: true,
		Reason:   reason(st.lastErr),
	}
}

// safeFallback always produces a value. A nil or panicking fallback yields
// JSON null so the outcome stays well formed.
func safeFallback(fn FallbackFunc, lastErr error) (v json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			v = json.RawMessage("null")
		}
	}()
	if fn == nil {
		return json.RawMessage("null")
	}
	if v = fn(lastErr); len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}

const maxReasonLen = 300

func reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxReasonLen {
		msg = msg[:maxReasonLen]
	}
	return msg
}
