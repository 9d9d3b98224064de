package course

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edukit/coursegen/internal/core/checkpoint"
	"github.com/edukit/coursegen/internal/generation/exec"
	"github.com/edukit/coursegen/internal/generation/retry"
	"github.com/edukit/coursegen/internal/generation/trace"
	"github.com/edukit/coursegen/internal/infra/genai"
	"github.com/edukit/coursegen/internal/infra/storage/memory"
)

// stubGen scripts completion responses per stage, recognized from the
// prompt text. fail is consulted before answering.
type stubGen struct {
	mu    sync.Mutex
	calls []string
	fail  func(user string) error
}

func (s *stubGen) Name() string { return "stub" }

func (s *stubGen) Generate(_ context.Context, req genai.Request) (genai.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req.Prompt)
	fail := s.fail
	s.mu.Unlock()

	if fail != nil {
		if err := fail(req.Prompt); err != nil {
			return genai.Response{}, err
		}
	}
	return genai.Response{
		Text:     stageReply(req.Prompt),
		Usage:    genai.Usage{InputTokens: 10, OutputTokens: 20},
		Provider: "stub",
	}, nil
}

func (s *stubGen) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubGen) reset(fail func(string) error) {
	s.mu.Lock()
	s.calls = nil
	s.fail = fail
	s.mu.Unlock()
}

// stageReply omits optional fields on purpose so the run exercises the
// decoder defaults end to end.
func stageReply(user string) string {
	switch {
	case strings.Contains(user, "course roadmap"):
		return `{"title":"Go Basics","description":"An introduction.","modules":[` +
			`{"title":"Syntax","summary":"The basics.","lessons":["Variables","Loops"]},` +
			`{"title":"Types","summary":"Composite types.","lessons":["Structs"]}]}`
	case strings.HasPrefix(user, "Write the lesson"):
		return `{"objectives":["know it"],"body":"Lesson body text.","key_points":["remember it"]}`
	default:
		return `{"questions":[{"prompt":"Which?","choices":["a","b","c","d"],"answer":1,"rationale":"because"}]}`
	}
}

func testSource() Source {
	return Source{CourseID: "go-basics", Title: "Go Basics", Text: "Go is a statically typed language."}
}

type rig struct {
	gen   *stubGen
	store *memory.Store
	rec   *trace.Recorder
}

func newRig(fail func(string) error) *rig {
	return &rig{gen: &stubGen{fail: fail}, store: memory.New()}
}

// generator builds a fresh run over the shared store, the way consecutive
// process invocations would.
func (r *rig) generator() *Generator {
	r.rec = trace.NewRecorder("run-test", r.store.Traces())
	pol := retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	ex := exec.NewExecutor(pol, 1, r.rec)
	return NewGenerator(r.gen, checkpoint.NewManager(r.store.Checkpoints()), ex, r.rec, Config{Workers: 2})
}

func (r *rig) checkpoints() *checkpoint.Manager {
	return checkpoint.NewManager(r.store.Checkpoints())
}

func TestGenerateFullCourse(t *testing.T) {
	ctx := context.Background()
	rig := newRig(nil)

	if err := rig.generator().Generate(ctx, []Source{testSource()}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// 1 roadmap + 3 lessons + 2 assessments.
	if got := rig.gen.callCount(); got != 6 {
		t.Fatalf("calls = %d, want 6", got)
	}

	lessons, err := rig.checkpoints().Load(ctx, DatasetLessons)
	if err != nil {
		t.Fatalf("load lessons: %v", err)
	}
	if len(lessons) != 2 {
		t.Fatalf("lesson groups = %d, want 2", len(lessons))
	}
	g1, ok := findGroup(lessons, "go-basics/module-01")
	if !ok || len(g1.Outcomes) != 2 {
		t.Fatalf("module-01 = %+v", g1)
	}
	if g1.Outcomes[0].UnitKey != "lesson_01_variables" || g1.Outcomes[1].UnitKey != "lesson_01_loops" {
		t.Errorf("unit order = %s, %s", g1.Outcomes[0].UnitKey, g1.Outcomes[1].UnitKey)
	}

	var l Lesson
	if err := json.Unmarshal(g1.Outcomes[0].Value, &l); err != nil {
		t.Fatalf("persisted lesson: %v", err)
	}
	if l.Title != "Variables" {
		t.Errorf("lesson title = %q, want roadmap title as default", l.Title)
	}

	assessments, err := rig.checkpoints().Load(ctx, DatasetAssessments)
	if err != nil {
		t.Fatalf("load assessments: %v", err)
	}
	ga, ok := findGroup(assessments, "go-basics")
	if !ok || len(ga.Outcomes) != 2 {
		t.Fatalf("assessment group = %+v", ga)
	}

	sum := rig.rec.Summary()
	if sum.Courses != 1 || sum.UnitsRun != 6 || sum.UnitsSkipped != 0 || sum.Fallbacks != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.InputTokens != 60 || sum.OutputTokens != 120 {
		t.Errorf("tokens = %d/%d, want 60/120", sum.InputTokens, sum.OutputTokens)
	}
}

func TestGenerateResumeSkipsCompletedWork(t *testing.T) {
	ctx := context.Background()
	rig := newRig(nil)
	courses := []Source{testSource()}

	if err := rig.generator().Generate(ctx, courses); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rig.gen.reset(nil)

	if err := rig.generator().Generate(ctx, courses); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := rig.gen.callCount(); got != 0 {
		t.Fatalf("resume made %d calls, want 0", got)
	}
	sum := rig.rec.Summary()
	if sum.UnitsRun != 0 || sum.UnitsSkipped != 6 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestGenerateRetriesOnlyFailedUnits(t *testing.T) {
	ctx := context.Background()
	// The quoted title only appears in the lesson prompt, so exactly one
	// lesson unit fails, non-transiently.
	rig := newRig(func(user string) error {
		if strings.Contains(user, `"Loops"`) {
			return errors.New("completion rejected: unsupported content")
		}
		return nil
	})
	courses := []Source{testSource()}

	if err := rig.generator().Generate(ctx, courses); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum := rig.rec.Summary()
	if sum.Fallbacks != 1 || len(sum.FallbackUnits) != 1 || sum.FallbackUnits[0] != "lesson_01_loops" {
		t.Fatalf("summary = %+v", sum)
	}

	lessons, _ := rig.checkpoints().Load(ctx, DatasetLessons)
	g1, _ := findGroup(lessons, "go-basics/module-01")
	out, _ := g1.Outcome("lesson_01_loops")
	if !out.FellBack || !strings.Contains(out.Reason, "unsupported content") {
		t.Fatalf("failed outcome = %+v", out)
	}

	rig.gen.reset(nil)
	if err := rig.generator().Generate(ctx, courses); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := rig.gen.callCount(); got != 1 {
		t.Fatalf("second run calls = %d, want only the failed lesson", got)
	}

	lessons, _ = rig.checkpoints().Load(ctx, DatasetLessons)
	g1, _ = findGroup(lessons, "go-basics/module-01")
	if len(g1.Outcomes) != 2 {
		t.Fatalf("module-01 outcomes = %d", len(g1.Outcomes))
	}
	// The retried unit is healed in place, order untouched.
	if g1.Outcomes[1].UnitKey != "lesson_01_loops" || g1.Outcomes[1].FellBack {
		t.Errorf("retried outcome = %+v", g1.Outcomes[1])
	}
	if g1.Outcomes[0].UnitKey != "lesson_01_variables" {
		t.Errorf("untouched outcome moved: %+v", g1.Outcomes[0])
	}

	sum = rig.rec.Summary()
	if sum.UnitsRun != 1 || sum.UnitsSkipped != 5 || sum.Fallbacks != 0 {
		t.Errorf("second summary = %+v", sum)
	}
}

func TestGenerateDefersCourseWhenRoadmapFallsBack(t *testing.T) {
	ctx := context.Background()
	rig := newRig(func(user string) error {
		if strings.Contains(user, "course roadmap") {
			return errors.New("api key invalid")
		}
		return nil
	})
	courses := []Source{testSource()}

	if err := rig.generator().Generate(ctx, courses); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := rig.gen.callCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}

	roadmaps, _ := rig.checkpoints().Load(ctx, DatasetRoadmap)
	gr, ok := findGroup(roadmaps, "go-basics")
	if !ok || len(gr.Outcomes) != 1 || !gr.Outcomes[0].FellBack {
		t.Fatalf("roadmap group = %+v", gr)
	}
	if lessons, _ := rig.checkpoints().Load(ctx, DatasetLessons); len(lessons) != 0 {
		t.Fatalf("lessons generated without a roadmap: %+v", lessons)
	}

	// Next run heals the roadmap and picks up the rest of the chain.
	rig.gen.reset(nil)
	if err := rig.generator().Generate(ctx, courses); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := rig.gen.callCount(); got != 6 {
		t.Fatalf("second run calls = %d, want 6", got)
	}
}

func TestGenerateCancelled(t *testing.T) {
	rig := newRig(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rig.generator().Generate(ctx, []Source{testSource()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := rig.gen.callCount(); got != 0 {
		t.Errorf("calls = %d after cancellation", got)
	}
}
