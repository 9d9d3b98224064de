// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProviderHealth contains health metrics for one completion provider.
type ProviderHealth struct {
	Name      string       `json:"name"`
	Status    SystemStatus `json:"status"`
	Active    bool         `json:"active"`
	Successes int          `json:"successes"`
	Failures  int          `json:"failures"`
	LastError string       `json:"last_error,omitempty"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus    SystemStatus              `json:"system_status"`
	Providers       map[string]ProviderHealth `json:"providers"`
	BudgetUsagePct  float64                   `json:"budget_usage_pct"`
	BudgetExhausted bool                      `json:"budget_exhausted"`
	CheckpointStore SystemStatus              `json:"checkpoint_store"`
}
