package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edukit/coursegen/internal/core/config"
	"github.com/edukit/coursegen/internal/infra/genai"
	"github.com/edukit/coursegen/internal/infra/storage/file"
)

func testConfig() Config {
	return Config{
		Port: 0, // Random port
		Providers: []config.ProviderConfig{
			{Name: "gemini", APIKey: "test-key", Model: "gemini-test"},
		},
		Checkpoint: config.CheckpointConfig{Backend: "memory"},
	}
}

func TestApp_Lifecycle(t *testing.T) {
	app, err := NewApp(testConfig())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.generator == nil || app.healthSrv == nil || app.recorder == nil {
		t.Fatal("App collaborators not wired")
	}

	// No courses configured: Run finishes without touching the provider,
	// which is the safe outcome for an empty deployment.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestApp_FileBackendIsDefault(t *testing.T) {
	cfg := testConfig()
	cfg.Checkpoint = config.CheckpointConfig{Dir: t.TempDir()}

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if _, ok := app.backend.Store.(*file.Store); !ok {
		t.Errorf("expected file store, got %T", app.backend.Store)
	}
}

func TestApp_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Checkpoint.Backend = "tape"

	if _, err := NewApp(cfg); err == nil || !strings.Contains(err.Error(), "unknown checkpoint backend") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestApp_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Providers[0].APIKey = ""

	if _, err := NewApp(cfg); !errors.Is(err, genai.ErrMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestApp_NoProviders(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = nil

	if _, err := NewApp(cfg); err == nil {
		t.Fatal("expected error with no providers configured")
	}
}

func TestApp_LoadSources(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "go.md")
	if err := os.WriteFile(good, []byte("Go is a typed language."), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Courses = []config.CourseConfig{
		{ID: "go-basics", Title: "Go Basics", SourceFile: good},
		{ID: "rust", SourceFile: filepath.Join(dir, "missing.md")}, // skipped
		{SourceFile: good}, // skipped, no id
	}

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	sources := app.loadSources()
	if len(sources) != 1 {
		t.Fatalf("expected 1 readable source, got %d", len(sources))
	}
	if sources[0].CourseID != "go-basics" || sources[0].Text == "" {
		t.Errorf("source = %+v", sources[0])
	}
}
