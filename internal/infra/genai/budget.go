package genai

import (
	"sync"
	"time"
)

// BudgetStats is a point-in-time usage snapshot.
type BudgetStats struct {
	Calls           int       `json:"calls"`
	CallLimit       int       `json:"call_limit"`
	Tokens          int       `json:"tokens"`
	TokenLimit      int       `json:"token_limit"`
	UsagePercentage float64   `json:"usage_percentage"`
	NextResetAt     time.Time `json:"next_reset_at"`
}

// Budget caps completion spend per day. A zero limit disables that cap.
// Counters reset lazily at local midnight, so a batch left running
// overnight picks up the fresh allowance on its next call.
type Budget struct {
	mu         sync.Mutex
	callLimit  int
	tokenLimit int
	calls      int
	tokens     int
	resetAt    time.Time
}

func NewBudget(callLimit, tokenLimit int) *Budget {
	return &Budget{
		callLimit:  callLimit,
		tokenLimit: tokenLimit,
		resetAt:    nextMidnight(time.Now()),
	}
}

// CanCall reports whether another completion call fits in today's budget.
func (b *Budget) CanCall() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	if b.callLimit > 0 && b.calls >= b.callLimit {
		return false
	}
	if b.tokenLimit > 0 && b.tokens >= b.tokenLimit {
		return false
	}
	return true
}

// Record charges one completed call against the budget.
func (b *Budget) Record(usage Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	b.calls++
	b.tokens += usage.InputTokens + usage.OutputTokens
}

// Stats returns current usage. UsagePercentage reflects whichever limit is
// closer to exhaustion.
func (b *Budget) Stats() BudgetStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	stats := BudgetStats{
		Calls:       b.calls,
		CallLimit:   b.callLimit,
		Tokens:      b.tokens,
		TokenLimit:  b.tokenLimit,
		NextResetAt: b.resetAt,
	}
	if b.callLimit > 0 {
		stats.UsagePercentage = float64(b.calls) / float64(b.callLimit) * 100
	}
	if b.tokenLimit > 0 {
		if pct := float64(b.tokens) / float64(b.tokenLimit) * 100; pct > stats.UsagePercentage {
			stats.UsagePercentage = pct
		}
	}
	return stats
}

// Reset clears today's counters.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = 0
	b.tokens = 0
	b.resetAt = nextMidnight(time.Now())
}

func (b *Budget) rollover() {
	if now := time.Now(); now.After(b.resetAt) {
		b.calls = 0
		b.tokens = 0
		b.resetAt = nextMidnight(now)
	}
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
