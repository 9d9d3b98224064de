// Package course is the content layer over the generation substrate: the
// roadmap/lesson/assessment schemas, their prompts, defaulting decoders and
// deterministic fallbacks, plus the generator that walks a course through
// the three stages group by group.
package course

// Source is the prepared material one course is generated from.
type Source struct {
	CourseID string // stable slug, names the checkpoint groups
	Title    string
	Text     string // extracted course text, already cleaned
}

// Roadmap is the course outline produced by the first stage.
type Roadmap struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Modules     []ModulePlan `json:"modules"`
}

// ModulePlan is one module of the roadmap with its planned lesson titles.
type ModulePlan struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Lessons []string `json:"lessons"`
}

// Lesson is the generated content for one lesson title.
type Lesson struct {
	Title      string   `json:"title"`
	Objectives []string `json:"objectives"`
	Body       string   `json:"body"`
	KeyPoints  []string `json:"key_points"`
}

// Assessment is the generated quiz for one module.
type Assessment struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question is one multiple-choice item.
type Question struct {
	Prompt    string   `json:"prompt"`
	Choices   []string `json:"choices"`
	Answer    int      `json:"answer"` // index into Choices
	Rationale string   `json:"rationale"`
}

// Dataset names, one checkpoint document per stage.
const (
	DatasetRoadmap     = "roadmap"
	DatasetLessons     = "lessons"
	DatasetAssessments = "assessments"
)

// Stage names used in unit keys, traces and metrics labels.
const (
	StageRoadmap    = "roadmap"
	StageLesson     = "lesson"
	StageAssessment = "assessment"
)
