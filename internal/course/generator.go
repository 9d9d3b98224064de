package course

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/edukit/coursegen/internal/core/checkpoint"
	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/generation/exec"
	"github.com/edukit/coursegen/internal/generation/metrics"
	"github.com/edukit/coursegen/internal/generation/runner"
	"github.com/edukit/coursegen/internal/generation/trace"
	"github.com/edukit/coursegen/internal/infra/genai"
)

// Config bounds one generation run.
type Config struct {
	// Workers caps concurrent units within one group.
	Workers int

	// Pacing is the per-worker delay between claims.
	Pacing time.Duration

	// Temperature and MaxOutputTokens are passed through to every call.
	Temperature     float64
	MaxOutputTokens int
}

// Generator drives the course chain for a batch of sources: one roadmap per
// course, then lessons grouped by module, then one assessment per module.
// Every stage is checkpointed in its own dataset, so an interrupted run
// resumes where it stopped.
type Generator struct {
	gen  genai.Generator
	ckpt *checkpoint.Manager
	exec *exec.Executor
	rec  *trace.Recorder
	cfg  Config
}

func NewGenerator(gen genai.Generator, ckpt *checkpoint.Manager, ex *exec.Executor, rec *trace.Recorder, cfg Config) *Generator {
	return &Generator{gen: gen, ckpt: ckpt, exec: ex, rec: rec, cfg: cfg}
}

// Generate runs the full chain for each source in order. It returns an error
// only when the run cannot continue (cancelled context, unusable checkpoint
// store); a course whose roadmap fell back is logged and skipped, not fatal.
func (g *Generator) Generate(ctx context.Context, courses []Source) error {
	for _, src := range courses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.rec != nil {
			g.rec.CountCourse()
		}
		slog.Info("generating course", "course", src.CourseID, "title", src.Title)

		// 1. Course outline. Everything downstream plans against it.
		roadmap, ok, err := g.roadmapStage(ctx, src)
		if err != nil {
			return err
		}
		if !ok {
			// A placeholder outline has no modules worth expanding. The
			// failed roadmap unit reruns on the next invocation.
			slog.Warn("roadmap unavailable, deferring course", "course", src.CourseID)
			continue
		}

		// 2. Lesson bodies, one group per module.
		if err := g.lessonsStage(ctx, src, roadmap); err != nil {
			return err
		}

		// 3. Module assessments, one group per course.
		if err := g.assessmentsStage(ctx, src, roadmap); err != nil {
			return err
		}
	}
	return nil
}

// roadmapStage generates or restores the course outline. ok is false when
// the persisted outline is a fallback placeholder.
func (g *Generator) roadmapStage(ctx context.Context, src Source) (Roadmap, bool, error) {
	groups, err := g.ckpt.Load(ctx, DatasetRoadmap)
	if err != nil {
		return Roadmap{}, false, err
	}

	units := []exec.Unit{g.roadmapUnit(src)}
	groups, err = g.runGroup(ctx, DatasetRoadmap, groups, src.CourseID, units)
	if err != nil {
		return Roadmap{}, false, err
	}

	group, found := findGroup(groups, src.CourseID)
	if !found {
		return Roadmap{}, false, fmt.Errorf("roadmap group %s missing after run", src.CourseID)
	}
	out, found := group.Outcome(RoadmapUnitKey(src.CourseID))
	if !found || out.FellBack {
		return Roadmap{}, false, nil
	}

	var roadmap Roadmap
	if err := json.Unmarshal(out.Value, &roadmap); err != nil {
		// Possible only with a hand-edited checkpoint. Reset the roadmap
		// dataset to force regeneration.
		slog.Warn("stored roadmap unreadable", "course", src.CourseID, "error", err)
		return Roadmap{}, false, nil
	}
	return roadmap, true, nil
}

// lessonsStage generates the lesson bodies module by module, persisting
// after each module so a crash loses at most one group.
func (g *Generator) lessonsStage(ctx context.Context, src Source, roadmap Roadmap) error {
	groups, err := g.ckpt.Load(ctx, DatasetLessons)
	if err != nil {
		return err
	}

	for i, module := range roadmap.Modules {
		num := i + 1
		units := make([]exec.Unit, 0, len(module.Lessons))
		for _, title := range module.Lessons {
			units = append(units, g.lessonUnit(src, module, num, title))
		}
		groups, err = g.runGroup(ctx, DatasetLessons, groups, ModuleGroupKey(src.CourseID, num), units)
		if err != nil {
			return err
		}
	}
	return nil
}

// assessmentsStage generates one assessment per module, all in a single
// course-level group.
func (g *Generator) assessmentsStage(ctx context.Context, src Source, roadmap Roadmap) error {
	groups, err := g.ckpt.Load(ctx, DatasetAssessments)
	if err != nil {
		return err
	}

	units := make([]exec.Unit, 0, len(roadmap.Modules))
	for i, module := range roadmap.Modules {
		units = append(units, g.assessmentUnit(src, module, i+1))
	}
	_, err = g.runGroup(ctx, DatasetAssessments, groups, src.CourseID, units)
	return err
}

// runGroup resolves one group of units against the loaded checkpoint
// document: classify, run what is pending, merge, persist. It returns the
// updated document so callers can chain groups without reloading.
func (g *Generator) runGroup(ctx context.Context, dataset string, groups []domain.GroupResult, groupKey string, units []exec.Unit) ([]domain.GroupResult, error) {
	keys := make([]string, len(units))
	for i, u := range units {
		keys[i] = u.Key
	}

	cls := checkpoint.Classify(groups, groupKey, keys)
	metrics.GroupDecisions.WithLabelValues(dataset, string(cls.Decision)).Inc()

	switch cls.Decision {
	case checkpoint.DecisionSkip:
		if g.rec != nil {
			g.rec.Skip(len(units))
		}
		slog.Info("group already complete", "dataset", dataset, "group", groupKey)
		return groups, nil

	case checkpoint.DecisionRetryOnly:
		retry := make(map[string]bool, len(cls.RetryKeys))
		for _, k := range cls.RetryKeys {
			retry[k] = true
		}
		var pending []exec.Unit
		for _, u := range units {
			if retry[u.Key] {
				pending = append(pending, u)
			}
		}
		if g.rec != nil {
			g.rec.Skip(len(units) - len(pending))
		}
		slog.Info("retrying failed units", "dataset", dataset, "group", groupKey,
			"pending", len(pending), "total", len(units))
		units = pending
	}

	fresh, err := runner.Map(ctx, runner.Config{Workers: g.cfg.Workers, Pacing: g.cfg.Pacing}, units,
		func(ctx context.Context, _ int, u exec.Unit) domain.Outcome {
			return g.exec.Process(ctx, groupKey, u)
		})
	if err != nil {
		// Cancelled mid-group. Nothing was persisted, so the partial
		// outcomes are simply dropped and the group reruns next time.
		return groups, fmt.Errorf("group %s interrupted: %w", groupKey, err)
	}

	result := domain.GroupResult{Key: groupKey, Outcomes: fresh, UpdatedAt: time.Now().UTC()}
	if cls.Decision == checkpoint.DecisionRetryOnly {
		prev, _ := findGroup(groups, groupKey)
		result.Outcomes = checkpoint.Merge(prev.Outcomes, fresh)
	}

	groups = checkpoint.Upsert(groups, result)
	if err := g.ckpt.Save(ctx, dataset, groups); err != nil {
		return groups, fmt.Errorf("failed to persist group %s: %w", groupKey, err)
	}
	metrics.CheckpointSaves.WithLabelValues(dataset).Inc()
	if g.rec != nil {
		g.rec.Flush(ctx)
	}
	return groups, nil
}

func findGroup(groups []domain.GroupResult, key string) (domain.GroupResult, bool) {
	for _, gr := range groups {
		if gr.Key == key {
			return gr, true
		}
	}
	return domain.GroupResult{}, false
}

// ---- unit builders ----

func (g *Generator) roadmapUnit(src Source) exec.Unit {
	system, user := RoadmapPrompt(src)
	return exec.Unit{
		Key:        RoadmapUnitKey(src.CourseID),
		Stage:      StageRoadmap,
		Label:      src.Title,
		InputBytes: len(user),
		Call:       g.call(system, user),
		Decode:     RoadmapDecoder(src.Title),
		Fallback:   func(error) json.RawMessage { return FallbackRoadmap(src.Title) },
	}
}

func (g *Generator) lessonUnit(src Source, module ModulePlan, moduleNum int, lessonTitle string) exec.Unit {
	system, user := LessonPrompt(src, module, lessonTitle)
	return exec.Unit{
		Key:        LessonUnitKey(moduleNum, lessonTitle),
		Stage:      StageLesson,
		Label:      lessonTitle,
		InputBytes: len(user),
		Call:       g.call(system, user),
		Decode:     LessonDecoder(lessonTitle),
		Fallback:   func(error) json.RawMessage { return FallbackLesson(lessonTitle) },
	}
}

func (g *Generator) assessmentUnit(src Source, module ModulePlan, moduleNum int) exec.Unit {
	system, user := AssessmentPrompt(src, module)
	label := module.Title + " assessment"
	return exec.Unit{
		Key:        AssessmentUnitKey(moduleNum, module.Title),
		Stage:      StageAssessment,
		Label:      label,
		InputBytes: len(user),
		Call:       g.call(system, user),
		Decode:     AssessmentDecoder(label),
		Fallback:   func(error) json.RawMessage { return FallbackAssessment(label) },
	}
}

func (g *Generator) call(system, user string) exec.CallFunc {
	return func(ctx context.Context) (string, genai.Usage, error) {
		resp, err := g.gen.Generate(ctx, genai.Request{
			System:          system,
			Prompt:          user,
			Temperature:     g.cfg.Temperature,
			MaxOutputTokens: g.cfg.MaxOutputTokens,
		})
		if err != nil {
			return "", genai.Usage{}, err
		}
		return resp.Text, resp.Usage, nil
	}
}
