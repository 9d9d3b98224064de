package course

import "encoding/json"

// Fallback documents are deterministic placeholders persisted when a unit
// exhausts its budgets. Collections stay empty rather than fabricate
// content; the fell-back flag marks the unit for retry on the next run.

func FallbackRoadmap(courseTitle string) json.RawMessage {
	b, _ := json.Marshal(Roadmap{
		Title:       courseTitle,
		Description: "Outline unavailable. It will be regenerated on the next run.",
		Modules:     []ModulePlan{},
	})
	return b
}

func FallbackLesson(label string) json.RawMessage {
	b, _ := json.Marshal(Lesson{
		Title:      label,
		Objectives: []string{},
		Body:       "Content unavailable. This lesson will be regenerated on the next run.",
		KeyPoints:  []string{},
	})
	return b
}

func FallbackAssessment(label string) json.RawMessage {
	b, _ := json.Marshal(Assessment{
		Title:     label,
		Questions: []Question{},
	})
	return b
}
