package course

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edukit/coursegen/internal/generation/exec"
	"github.com/edukit/coursegen/internal/generation/repair"
)

// Named defaults for optional fields the model tends to omit. Required
// fields (modules, lesson body, questions) have no default; their absence
// fails the decode so the executor re-calls the service.
const (
	defaultDescription   = "A guided course based on the provided material."
	defaultModuleSummary = "Module overview"
	defaultAnswerIndex   = 0
)

func defaultModuleTitle(i int) string {
	return fmt.Sprintf("Module %d", i+1)
}

// RoadmapDecoder validates and canonicalizes a roadmap completion. The
// course title fills a missing roadmap title.
func RoadmapDecoder(courseTitle string) exec.DecodeFunc {
	return func(raw string) (json.RawMessage, error) {
		value, err := repair.Parse(raw)
		if err != nil {
			return nil, err
		}

		var r Roadmap
		if err := json.Unmarshal(value, &r); err != nil {
			return nil, fmt.Errorf("roadmap schema: %w", err)
		}

		if r.Title == "" {
			r.Title = courseTitle
		}
		if r.Description == "" {
			r.Description = defaultDescription
		}
		if len(r.Modules) == 0 {
			return nil, errors.New("roadmap has no modules")
		}
		for i := range r.Modules {
			m := &r.Modules[i]
			if m.Title == "" {
				m.Title = defaultModuleTitle(i)
			}
			if m.Summary == "" {
				m.Summary = defaultModuleSummary
			}
			if len(m.Lessons) == 0 {
				return nil, fmt.Errorf("module %q has no lessons", m.Title)
			}
		}
		return json.Marshal(r)
	}
}

// LessonDecoder validates and canonicalizes a lesson completion. The lesson
// title from the roadmap fills a missing title.
func LessonDecoder(label string) exec.DecodeFunc {
	return func(raw string) (json.RawMessage, error) {
		value, err := repair.Parse(raw)
		if err != nil {
			return nil, err
		}

		var l Lesson
		if err := json.Unmarshal(value, &l); err != nil {
			return nil, fmt.Errorf("lesson schema: %w", err)
		}

		if l.Title == "" {
			l.Title = label
		}
		if l.Body == "" {
			return nil, errors.New("lesson body is empty")
		}
		if l.Objectives == nil {
			l.Objectives = []string{}
		}
		if l.KeyPoints == nil {
			l.KeyPoints = []string{}
		}
		return json.Marshal(l)
	}
}

// AssessmentDecoder validates and canonicalizes an assessment completion.
func AssessmentDecoder(label string) exec.DecodeFunc {
	return func(raw string) (json.RawMessage, error) {
		value, err := repair.Parse(raw)
		if err != nil {
			return nil, err
		}

		var a Assessment
		if err := json.Unmarshal(value, &a); err != nil {
			return nil, fmt.Errorf("assessment schema: %w", err)
		}

		if a.Title == "" {
			a.Title = label
		}
		if len(a.Questions) == 0 {
			return nil, errors.New("assessment has no questions")
		}
		for i := range a.Questions {
			q := &a.Questions[i]
			if q.Prompt == "" {
				return nil, fmt.Errorf("question %d has no prompt", i+1)
			}
			if len(q.Choices) < 2 {
				return nil, fmt.Errorf("question %d needs at least two choices", i+1)
			}
			if q.Answer < 0 || q.Answer >= len(q.Choices) {
				q.Answer = defaultAnswerIndex
			}
		}
		return json.Marshal(a)
	}
}
