package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edukit/coursegen/internal/control"
	"github.com/edukit/coursegen/internal/core/config"
	"github.com/edukit/coursegen/internal/core/domain"
)

const (
	twoModuleRoadmap = `{"title":"","description":"","modules":[` +
		`{"title":"Getting Started","summary":"First steps","lessons":["Values","Functions"]},` +
		`{"title":"Concurrency","summary":"Goroutines and channels","lessons":["Goroutines"]}]}`

	fiveLessonRoadmap = `{"title":"","description":"","modules":[` +
		`{"title":"Fundamentals","summary":"Core ideas","lessons":["One","Two","Three","Four","Five"]}]}`

	lessonReply = `{"title":"","objectives":["Recognize the concept"],"body":"Lesson body text.","key_points":["One key point"]}`

	quizReply = `{"title":"","questions":[{"prompt":"Pick the true statement.",` +
		`"choices":["First","Second","Third"],"answer":1,"rationale":"Second is correct."}]}`
)

// completionServer fakes the generateContent endpoint so a full run can be
// driven without a real provider. Replies are picked by prompt content; deny
// entries serve 429s for prompts containing the marker until their count
// runs out.
type completionServer struct {
	mu      sync.Mutex
	calls   int
	deny    map[string]int
	roadmap string
	srv     *httptest.Server
}

func newCompletionServer(t *testing.T, roadmap string, deny map[string]int) *completionServer {
	t.Helper()
	s := &completionServer{roadmap: roadmap, deny: deny}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *completionServer) URL() string { return s.srv.URL }
func (s *completionServer) Close()      { s.srv.Close() }

func (s *completionServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *completionServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.URL.Path, ":generateContent") {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	prompt := ""
	if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		prompt = req.Contents[0].Parts[0].Text
	}

	s.mu.Lock()
	s.calls++
	denied := false
	for marker, left := range s.deny {
		if left > 0 && strings.Contains(prompt, marker) {
			s.deny[marker] = left - 1
			denied = true
			break
		}
	}
	s.mu.Unlock()

	if denied {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`)
		return
	}

	var text string
	switch {
	case strings.Contains(prompt, "Design a course roadmap"):
		text = s.roadmap
	case strings.Contains(prompt, "Write the lesson"):
		text = lessonReply
	default:
		text = quizReply
	}

	resp := map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"parts": []map[string]any{{"text": text}}},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     10,
			"candidatesTokenCount": 20,
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func appConfig(dataDir, baseURL, srcFile string) control.Config {
	return control.Config{
		Port: 0,
		Pipeline: config.PipelineConfig{
			Workers:         2,
			Pacing:          config.Duration(time.Millisecond),
			MaxRetries:      4,
			BaseDelay:       config.Duration(time.Millisecond),
			RepairRetries:   2,
			MaxOutputTokens: 1024,
		},
		Providers: []config.ProviderConfig{
			{Name: "gemini", APIKey: "test-key", BaseURL: baseURL, Timeout: config.Duration(5 * time.Second)},
		},
		Checkpoint: config.CheckpointConfig{Backend: "file", Dir: dataDir},
		Courses: []config.CourseConfig{
			{ID: "go-basics", Title: "Go Basics", SourceFile: srcFile},
		},
	}
}

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "go-basics.txt")
	err := os.WriteFile(path, []byte("Go basics source material: values, functions, goroutines."), 0o644)
	if err != nil {
		t.Fatalf("Failed to write course source: %v", err)
	}
	return path
}

func readCheckpoint(t *testing.T, dataDir, dataset string) []domain.GroupResult {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dataDir, dataset+".json"))
	if err != nil {
		t.Fatalf("Failed to read %s checkpoint: %v", dataset, err)
	}
	var groups []domain.GroupResult
	if err := json.Unmarshal(b, &groups); err != nil {
		t.Fatalf("Malformed %s checkpoint: %v", dataset, err)
	}
	return groups
}

func readTraces(t *testing.T, dataDir string) []domain.Trace {
	t.Helper()
	tracesDir := filepath.Join(dataDir, "traces")
	entries, err := os.ReadDir(tracesDir)
	if err != nil {
		t.Fatalf("Failed to read traces dir: %v", err)
	}
	var out []domain.Trace
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(tracesDir, e.Name()))
		if err != nil {
			t.Fatalf("Failed to read trace log %s: %v", e.Name(), err)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
			if line == "" {
				continue
			}
			var tr domain.Trace
			if err := json.Unmarshal([]byte(line), &tr); err != nil {
				t.Fatalf("Malformed trace line in %s: %v", e.Name(), err)
			}
			out = append(out, tr)
		}
	}
	return out
}

func findGroup(t *testing.T, groups []domain.GroupResult, key string) domain.GroupResult {
	t.Helper()
	for _, g := range groups {
		if g.Key == key {
			return g
		}
	}
	t.Fatalf("Group %s not found in checkpoint", key)
	return domain.GroupResult{}
}

func TestCourseRunThroughAndResume(t *testing.T) {
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")
	srcFile := writeSource(t, tmp)

	server := newCompletionServer(t, twoModuleRoadmap, nil)
	defer server.Close()

	cfg := appConfig(dataDir, server.URL(), srcFile)

	app, err := control.NewApp(cfg)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	// 1 roadmap + 3 lessons + 2 quizzes.
	if got := server.Calls(); got != 6 {
		t.Errorf("expected 6 provider calls, got %d", got)
	}

	roadmap := readCheckpoint(t, dataDir, "roadmap")
	if len(roadmap) != 1 || roadmap[0].Key != "go-basics" {
		t.Fatalf("unexpected roadmap checkpoint: %+v", roadmap)
	}
	if len(roadmap[0].Outcomes) != 1 || roadmap[0].Outcomes[0].FellBack {
		t.Fatalf("unexpected roadmap outcomes: %+v", roadmap[0].Outcomes)
	}

	// One group per module, outcomes in roadmap order.
	lessons := readCheckpoint(t, dataDir, "lessons")
	if len(lessons) != 2 {
		t.Fatalf("expected 2 lesson groups, got %d", len(lessons))
	}
	first := findGroup(t, lessons, "go-basics/module-01")
	for i, want := range []string{"lesson_01_values", "lesson_02_functions"} {
		if first.Outcomes[i].UnitKey != want {
			t.Errorf("lesson outcome %d = %s, want %s", i, first.Outcomes[i].UnitKey, want)
		}
	}

	// Stored lesson values carry the canonical schema with the title filled
	// in from the roadmap.
	var lesson struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(first.Outcomes[0].Value, &lesson); err != nil {
		t.Fatalf("Failed to decode stored lesson: %v", err)
	}
	if lesson.Title != "Values" {
		t.Errorf("stored lesson title = %q, want %q", lesson.Title, "Values")
	}

	assessments := readCheckpoint(t, dataDir, "assessments")
	if len(assessments) != 1 || len(assessments[0].Outcomes) != 2 {
		t.Fatalf("unexpected assessments checkpoint: %+v", assessments)
	}

	traces := readTraces(t, dataDir)
	if len(traces) != 6 {
		t.Errorf("expected one trace per unit, got %d", len(traces))
	}
	for _, tr := range traces {
		if tr.FellBack {
			t.Errorf("unit %s fell back: %s", tr.UnitKey, tr.Error)
		}
		if tr.Attempts != 1 {
			t.Errorf("unit %s used %d attempts, want 1", tr.UnitKey, tr.Attempts)
		}
	}

	// A second run over the same data directory finds every group complete
	// and never calls the provider.
	app2, err := control.NewApp(cfg)
	if err != nil {
		t.Fatalf("Failed to create second app: %v", err)
	}
	if err := app2.Run(ctx); err != nil {
		t.Fatalf("Resume run failed: %v", err)
	}
	if err := app2.Stop(stopCtx); err != nil {
		t.Errorf("Second stop failed: %v", err)
	}
	if got := server.Calls(); got != 6 {
		t.Errorf("resume made %d extra provider calls, want 0", got-6)
	}
}

func TestRetryAttemptsRecordedInTrace(t *testing.T) {
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")
	srcFile := writeSource(t, tmp)

	// The third lesson of five is rate limited twice before the provider
	// recovers. Two workers keep the other lessons flowing meanwhile.
	server := newCompletionServer(t, fiveLessonRoadmap, map[string]int{`lesson "Three"`: 2})
	defer server.Close()

	app, err := control.NewApp(appConfig(dataDir, server.URL(), srcFile))
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	// 7 units plus the two rate limited requests on the third lesson.
	if got := server.Calls(); got != 9 {
		t.Errorf("expected 9 provider requests, got %d", got)
	}

	traces := readTraces(t, dataDir)
	if len(traces) != 7 {
		t.Fatalf("expected 7 traces, got %d", len(traces))
	}
	var hit *domain.Trace
	for i := range traces {
		if traces[i].UnitKey == "lesson_03_three" {
			hit = &traces[i]
		}
	}
	if hit == nil {
		t.Fatal("No trace recorded for lesson_03_three")
	}
	if hit.Attempts != 3 {
		t.Errorf("attempts = %d, want 3 (two rate limited calls plus the success)", hit.Attempts)
	}
	if hit.FellBack {
		t.Errorf("unit fell back after retries: %s", hit.Error)
	}
	if hit.Error != "" {
		t.Errorf("recovered unit carries error %q", hit.Error)
	}
	// Two backoff sleeps of at least BaseDelay (1ms) each sit inside the
	// unit's wall clock.
	if hit.DurationMS < 2 {
		t.Errorf("unit duration %dms does not cover two backoff delays", hit.DurationMS)
	}

	// The checkpoint holds the recovered lesson in roadmap order with no
	// fallback marks.
	lessons := readCheckpoint(t, dataDir, "lessons")
	group := findGroup(t, lessons, "go-basics/module-01")
	if len(group.Outcomes) != 5 {
		t.Fatalf("expected 5 lesson outcomes, got %d", len(group.Outcomes))
	}
	wantKeys := []string{"lesson_01_one", "lesson_02_two", "lesson_03_three", "lesson_04_four", "lesson_05_five"}
	for i, want := range wantKeys {
		if group.Outcomes[i].UnitKey != want {
			t.Errorf("lesson outcome %d = %s, want %s", i, group.Outcomes[i].UnitKey, want)
		}
		if group.Outcomes[i].FellBack {
			t.Errorf("outcome %s fell back", want)
		}
	}
}
