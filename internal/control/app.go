// Package control wires configuration, storage, providers and the course
// generator into one runnable application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/edukit/coursegen/internal/core/checkpoint"
	"github.com/edukit/coursegen/internal/core/config"
	"github.com/edukit/coursegen/internal/core/worker"
	"github.com/edukit/coursegen/internal/course"
	"github.com/edukit/coursegen/internal/generation/exec"
	"github.com/edukit/coursegen/internal/generation/health"
	"github.com/edukit/coursegen/internal/generation/retry"
	"github.com/edukit/coursegen/internal/generation/trace"
	"github.com/edukit/coursegen/internal/infra/genai"
	redisclient "github.com/edukit/coursegen/internal/infra/redis"
	"github.com/edukit/coursegen/internal/infra/storage/postgres"
)

const (
	runLockName = "generator"
	runLockTTL  = 10 * time.Minute
)

// ErrRunLocked means another process holds the generation lock.
var ErrRunLocked = errors.New("another generation run holds the lock")

// Config holds the application configuration.
type Config struct {
	Port       int
	Pipeline   config.PipelineConfig
	Providers  []config.ProviderConfig
	Budget     config.BudgetConfig
	Checkpoint config.CheckpointConfig
	Redis      redisclient.Config
	Database   postgres.Config
	Courses    []config.CourseConfig
}

// ConfigFrom flattens the loaded file configuration into the control config.
func ConfigFrom(cfg *config.AppConfig) Config {
	return Config{
		Port:       cfg.Server.Port,
		Pipeline:   cfg.Pipeline,
		Providers:  cfg.Providers,
		Budget:     cfg.Budget,
		Checkpoint: cfg.Checkpoint,
		Redis:      cfg.Redis,
		Database:   cfg.Database,
		Courses:    cfg.Courses,
	}
}

// App is the assembled generator application.
type App struct {
	cfg       Config
	runID     string
	backend   *Backend
	budget    *genai.Budget
	router    *genai.Router
	recorder  *trace.Recorder
	generator *course.Generator
	healthMon *health.Monitor
	healthSrv *health.Server
	pruner    *worker.Pruner
	log       *slog.Logger
}

// NewApp creates the application with all dependencies initialized. Setup
// problems (bad backend, missing API key, unreachable database) fail here,
// before any unit is dispatched.
func NewApp(cfg Config) (*App, error) {
	// 1. Checkpoint storage.
	backend, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}

	// 2. Completion providers behind the failover router.
	var providers []genai.Generator
	for _, p := range cfg.Providers {
		if p.APIKey == "" {
			return nil, fmt.Errorf("provider %s: %w", p.Name, genai.ErrMissingAPIKey)
		}
		opts := genai.Options{
			APIKey:          p.APIKey,
			Model:           p.Model,
			BaseURL:         p.BaseURL,
			Timeout:         p.Timeout.Duration(),
			Temperature:     cfg.Pipeline.Temperature,
			MaxOutputTokens: cfg.Pipeline.MaxOutputTokens,
		}
		switch p.Name {
		case "gemini":
			providers = append(providers, genai.NewGemini(opts))
		case "anthropic":
			providers = append(providers, genai.NewAnthropic(opts))
		default:
			return nil, fmt.Errorf("unknown provider %q", p.Name)
		}
	}

	budget := genai.NewBudget(cfg.Budget.DailyCalls, cfg.Budget.DailyTokens)
	router, err := genai.NewRouter(budget, providers...)
	if err != nil {
		return nil, err
	}

	// 3. Run identity and trace recorder.
	runID := uuid.New().String()
	recorder := trace.NewRecorder(runID, backend.Store.Traces())

	// 4. Execution pipeline.
	policy := retry.Policy{
		MaxRetries: cfg.Pipeline.MaxRetries,
		BaseDelay:  cfg.Pipeline.BaseDelay.Duration(),
		JitterMax:  retry.DefaultJitterMax,
	}
	executor := exec.NewExecutor(policy, cfg.Pipeline.RepairRetries, recorder)
	generator := course.NewGenerator(router, checkpoint.NewManager(backend.Store.Checkpoints()), executor, recorder, course.Config{
		Workers:         cfg.Pipeline.Workers,
		Pacing:          cfg.Pipeline.Pacing.Duration(),
		Temperature:     cfg.Pipeline.Temperature,
		MaxOutputTokens: cfg.Pipeline.MaxOutputTokens,
	})

	// 5. Health monitor and server.
	healthMon := health.NewMonitor(router, budget, backend.Pinger())
	healthSrv := health.NewServer(healthMon, cfg.Port)

	// 6. Trace retention.
	pruner := worker.NewPruner(cfg.Pipeline.TraceRetention.Duration(), backend.Store.Traces())

	return &App{
		cfg:       cfg,
		runID:     runID,
		backend:   backend,
		budget:    budget,
		router:    router,
		recorder:  recorder,
		generator: generator,
		healthMon: healthMon,
		healthSrv: healthSrv,
		pruner:    pruner,
		log:       slog.Default(),
	}, nil
}

// Run executes one generation pass over the configured courses and blocks
// until it finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	// The run lock keeps two processes from rewriting the same checkpoints.
	if a.backend.Redis != nil {
		ok, err := a.backend.Redis.AcquireRunLock(ctx, runLockName, runLockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !ok {
			return ErrRunLocked
		}
		defer a.releaseRunLock()
		go a.refreshRunLock(ctx)
	}

	go func() {
		if err := a.healthSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	if a.backend.DB != nil {
		a.backend.DB.StartPoolGauge(ctx)
	}
	go a.pruner.Start(ctx)

	sources := a.loadSources()
	if len(sources) == 0 {
		a.log.Warn("No readable course sources configured, nothing to do")
		return nil
	}

	a.log.Info("Starting generation run",
		"run_id", a.runID,
		"courses", len(sources),
		"workers", a.cfg.Pipeline.Workers)

	genErr := a.generator.Generate(ctx, sources)

	// Flush pending traces even when the run was cut short.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.recorder.Flush(flushCtx)

	a.logSummary()
	return genErr
}

// Stop shuts the application down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping generator...")

	if err := a.backend.Close(); err != nil {
		a.log.Warn("Failed to close storage", "error", err)
	}
	return a.healthSrv.Stop(ctx)
}

// loadSources reads the configured course material. Unreadable entries are
// skipped with a warning so one bad path does not sink the whole batch.
func (a *App) loadSources() []course.Source {
	var sources []course.Source
	for _, c := range a.cfg.Courses {
		if c.ID == "" {
			a.log.Warn("Skipping course with empty id", "file", c.SourceFile)
			continue
		}
		text, err := os.ReadFile(c.SourceFile)
		if err != nil {
			a.log.Warn("Skipping course, source unreadable", "course", c.ID, "file", c.SourceFile, "error", err)
			continue
		}
		title := c.Title
		if title == "" {
			title = c.ID
		}
		sources = append(sources, course.Source{CourseID: c.ID, Title: title, Text: string(text)})
	}
	return sources
}

func (a *App) logSummary() {
	s := a.recorder.Summary()
	a.log.Info("Generation run complete",
		"run_id", s.RunID,
		"courses", s.Courses,
		"units_run", s.UnitsRun,
		"units_skipped", s.UnitsSkipped,
		"fallbacks", s.Fallbacks,
		"input_tokens", s.InputTokens,
		"output_tokens", s.OutputTokens,
		"duration", s.Duration.Round(time.Millisecond))
	if len(s.FallbackUnits) > 0 {
		a.log.Warn("Units resolved by fallback, rerun to retry", "units", s.FallbackUnits)
	}
}

func (a *App) refreshRunLock(ctx context.Context) {
	ticker := time.NewTicker(runLockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.backend.Redis.RefreshRunLock(ctx, runLockName, runLockTTL); err != nil {
				a.log.Warn("Failed to refresh run lock", "error", err)
			}
		}
	}
}

func (a *App) releaseRunLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.backend.Redis.ReleaseRunLock(ctx, runLockName); err != nil {
		a.log.Warn("Failed to release run lock", "error", err)
	}
}
