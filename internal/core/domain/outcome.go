package domain

import (
	"encoding/json"
	"time"
)

// Outcome is the terminal resolution of one work unit
type Outcome struct {
	UnitKey  string          `json:"unit_key"`
	Value    json.RawMessage `json:"value"`
	FellBack bool            `json:"fell_back"`
	Reason   string          `json:"reason,omitempty"`
}

// GroupResult is the persisted result set for one group of units
type GroupResult struct {
	Key       string    `json:"key"`
	Outcomes  []Outcome `json:"outcomes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FailedKeys returns the unit keys of all fallback outcomes, in order.
func (g GroupResult) FailedKeys() []string {
	var keys []string
	for _, o := range g.Outcomes {
		if o.FellBack {
			keys = append(keys, o.UnitKey)
		}
	}
	return keys
}

// Outcome returns the outcome for a unit key, if present.
func (g GroupResult) Outcome(unitKey string) (Outcome, bool) {
	for _, o := range g.Outcomes {
		if o.UnitKey == unitKey {
			return o, true
		}
	}
	return Outcome{}, false
}
