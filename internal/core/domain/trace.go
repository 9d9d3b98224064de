package domain

import "time"

// Trace summarizes all attempts of one unit. Traces are append-only:
// once recorded they are never mutated.
type Trace struct {
	RunID        string    `json:"run_id"`
	Stage        string    `json:"stage"`
	GroupKey     string    `json:"group_key,omitempty"`
	UnitKey      string    `json:"unit_key"`
	Attempts     int       `json:"attempts"`
	DurationMS   int64     `json:"duration_ms"`
	InputBytes   int       `json:"input_bytes"`
	OutputBytes  int       `json:"output_bytes"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	FellBack     bool      `json:"fell_back"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}
