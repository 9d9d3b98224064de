package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/edukit/coursegen/internal/generation/metrics"
)

// providerHealth tracks one provider's recent behavior for the health report.
type providerHealth struct {
	successes     int
	failures      int
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastError     string
}

// Router fans one Generate call out over an ordered provider list. The
// provider that last succeeded stays active; a failed call rotates to the
// next provider unless the failure is a request bug that every provider
// would reject the same way. The Budget gate is checked before any call.
type Router struct {
	mu        sync.Mutex
	providers []Generator
	health    map[string]*providerHealth
	active    int
	budget    *Budget
}

// NewRouter builds a router over providers in failover order. budget may be
// nil to run without spend limits.
func NewRouter(budget *Budget, providers ...Generator) (*Router, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	health := make(map[string]*providerHealth, len(providers))
	for _, p := range providers {
		health[p.Name()] = &providerHealth{}
	}
	return &Router{providers: providers, health: health, budget: budget}, nil
}

func (r *Router) Name() string { return "router" }

// Generate tries the active provider first, then rotates through the rest.
// The last error is returned when every provider fails.
func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	if r.budget != nil && !r.budget.CanCall() {
		return Response{}, ErrBudgetExhausted
	}

	r.mu.Lock()
	start := r.active
	n := len(r.providers)
	r.mu.Unlock()

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		p := r.providers[idx]

		callStart := time.Now()
		resp, err := p.Generate(ctx, req)
		metrics.ProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(callStart).Seconds())

		if err == nil {
			r.recordSuccess(idx, p.Name(), resp.Usage)
			return resp, nil
		}
		r.recordFailure(p.Name(), err)
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)

		if requestBug(err) {
			return Response{}, lastErr
		}
		if i < n-1 {
			slog.Warn("rotating completion provider",
				"from", p.Name(),
				"to", r.providers[(idx+1)%n].Name(),
				"err", err)
		}
	}
	return Response{}, lastErr
}

// Health returns a snapshot of per-provider counters keyed by name.
type ProviderStatus struct {
	Name          string    `json:"name"`
	Active        bool      `json:"active"`
	Successes     int       `json:"successes"`
	Failures      int       `json:"failures"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

func (r *Router) Health() []ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProviderStatus, 0, len(r.providers))
	for i, p := range r.providers {
		h := r.health[p.Name()]
		out = append(out, ProviderStatus{
			Name:          p.Name(),
			Active:        i == r.active,
			Successes:     h.successes,
			Failures:      h.failures,
			LastSuccessAt: h.lastSuccessAt,
			LastFailureAt: h.lastFailureAt,
			LastError:     h.lastError,
		})
	}
	return out
}

func (r *Router) recordSuccess(idx int, name string, usage Usage) {
	r.mu.Lock()
	h := r.health[name]
	h.successes++
	h.lastSuccessAt = time.Now()
	r.active = idx
	r.mu.Unlock()

	metrics.ProviderCalls.WithLabelValues(name, "ok").Inc()
	metrics.TokensConsumed.WithLabelValues(name, "input").Add(float64(usage.InputTokens))
	metrics.TokensConsumed.WithLabelValues(name, "output").Add(float64(usage.OutputTokens))

	if r.budget != nil {
		r.budget.Record(usage)
		metrics.BudgetUsage.Set(r.budget.Stats().UsagePercentage)
	}
}

func (r *Router) recordFailure(name string, err error) {
	r.mu.Lock()
	h := r.health[name]
	h.failures++
	h.lastFailureAt = time.Now()
	h.lastError = err.Error()
	r.mu.Unlock()

	metrics.ProviderCalls.WithLabelValues(name, "error").Inc()
	metrics.ProviderErrors.WithLabelValues(name, errorType(err)).Inc()
}

func errorType(err error) string {
	if requestBug(err) {
		return "request_bug"
	}
	return "transport"
}

// requestBug reports failures caused by the request itself. Rotating
// providers cannot fix these; quota and transport failures rotate because
// each provider has its own quota and its own outages.
func requestBug(err error) bool {
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrEmptyPrompt) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"status 400", "status 401", "status 403", "status 404", "status 422"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
