package health

import (
	"context"
	"sync"
	"time"

	"github.com/edukit/coursegen/internal/infra/genai"
)

// ProviderSource exposes per-provider call counters.
type ProviderSource interface {
	Health() []genai.ProviderStatus
}

// BudgetSource exposes the daily spend state.
type BudgetSource interface {
	Stats() genai.BudgetStats
	CanCall() bool
}

// StorePinger checks that the checkpoint store answers.
type StorePinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	providers  ProviderSource
	budget     BudgetSource
	store      StorePinger
	lastCheck  time.Time
	lastReport Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. budget and store may be nil when
// the deployment runs without spend limits or without a pingable store.
func NewMonitor(providers ProviderSource, budget BudgetSource, store StorePinger) *Monitor {
	return &Monitor{
		providers: providers,
		budget:    budget,
		store:     store,
	}
}

// CheckHealth builds the current report. Results are cached for a few seconds
// so probes cannot hammer the store.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Providers != nil {
		return m.lastReport
	}

	report := Report{
		SystemStatus:    StatusHealthy,
		Providers:       make(map[string]ProviderHealth),
		CheckpointStore: StatusHealthy,
	}

	degradedProviders := 0
	statuses := m.providers.Health()
	for _, ps := range statuses {
		ph := ProviderHealth{
			Name:      ps.Name,
			Status:    providerStatus(ps),
			Active:    ps.Active,
			Successes: ps.Successes,
			Failures:  ps.Failures,
			LastError: ps.LastError,
		}
		if ph.Status != StatusHealthy {
			degradedProviders++
		}
		report.Providers[ps.Name] = ph
	}

	if m.budget != nil {
		stats := m.budget.Stats()
		report.BudgetUsagePct = stats.UsagePercentage
		report.BudgetExhausted = !m.budget.CanCall()
	}

	if m.store != nil {
		if err := m.store.Health(ctx); err != nil {
			report.CheckpointStore = StatusCritical
		}
	}

	// Evaluate overall status (worst case wins).
	switch {
	case len(statuses) > 0 && degradedProviders == len(statuses):
		report.SystemStatus = StatusCritical
	case report.BudgetExhausted:
		report.SystemStatus = StatusCritical
	case degradedProviders > 0 || report.BudgetUsagePct >= 90 || report.CheckpointStore != StatusHealthy:
		report.SystemStatus = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

// providerStatus grades one provider from its counters. A provider that has
// mostly failed over a meaningful sample is degraded.
func providerStatus(ps genai.ProviderStatus) SystemStatus {
	total := ps.Successes + ps.Failures
	if total < 4 {
		return StatusHealthy
	}
	if float64(ps.Failures)/float64(total) > 0.5 {
		return StatusDegraded
	}
	return StatusHealthy
}
