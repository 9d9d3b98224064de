package domain

import "time"

// RunSummary aggregates one batch run for the end-of-run report.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Courses       int           `json:"courses"`
	UnitsTotal    int           `json:"units_total"`
	UnitsRun      int           `json:"units_run"`
	UnitsSkipped  int           `json:"units_skipped"`
	Fallbacks     int           `json:"fallbacks"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	Duration      time.Duration `json:"duration"`
	StartedAt     time.Time     `json:"started_at"`
	FallbackUnits []string      `json:"fallback_units,omitempty"`
}

// Add folds a single trace into the summary counters.
func (s *RunSummary) Add(t Trace) {
	s.UnitsTotal++
	s.UnitsRun++
	s.InputTokens += t.InputTokens
	s.OutputTokens += t.OutputTokens
	if t.FellBack {
		s.Fallbacks++
		s.FallbackUnits = append(s.FallbackUnits, t.UnitKey)
	}
}
