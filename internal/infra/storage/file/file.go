// Package file is the default storage backend: checkpoints as
// pretty-printed JSON documents and traces as per-run JSONL logs under one
// working directory. Suits the single-writer batch model; survives kill -9
// by writing checkpoints to a temp file and renaming over the old one.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/infra/storage"
)

const (
	checkpointExt = ".json"
	tracesSubdir  = "traces"
)

// Store keeps all run state under a single directory.
type Store struct {
	dir         string
	checkpoints *CheckpointRepo
	traces      *TraceRepo
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, tracesSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &Store{
		dir:         dir,
		checkpoints: &CheckpointRepo{dir: dir},
		traces:      &TraceRepo{dir: filepath.Join(dir, tracesSubdir)},
	}, nil
}

func (s *Store) Checkpoints() storage.CheckpointRepository { return s.checkpoints }
func (s *Store) Traces() storage.TraceRepository           { return s.traces }
func (s *Store) Close() error                              { return nil }

// CheckpointRepo stores one <dataset>.json document per dataset.
type CheckpointRepo struct {
	dir string
}

func (r *CheckpointRepo) path(dataset string) string {
	return filepath.Join(r.dir, filepath.Base(dataset)+checkpointExt)
}

func (r *CheckpointRepo) Load(_ context.Context, dataset string) ([]domain.GroupResult, error) {
	data, err := os.ReadFile(r.path(dataset))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", dataset, err)
	}

	var groups []domain.GroupResult
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrMalformed, dataset, err)
	}
	return groups, nil
}

func (r *CheckpointRepo) Save(_ context.Context, dataset string, groups []domain.GroupResult) error {
	if groups == nil {
		groups = []domain.GroupResult{}
	}
	data, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", dataset, err)
	}

	// Write-then-rename keeps the previous document intact if the process
	// dies mid-write.
	target := r.path(dataset)
	tmp, err := os.CreateTemp(r.dir, filepath.Base(dataset)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint %s: %w", dataset, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace checkpoint %s: %w", dataset, err)
	}
	return nil
}

func (r *CheckpointRepo) Delete(_ context.Context, dataset string) error {
	err := os.Remove(r.path(dataset))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint %s: %w", dataset, err)
	}
	return nil
}

func (r *CheckpointRepo) Datasets(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), checkpointExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), checkpointExt))
	}
	return names, nil
}

// TraceRepo appends one JSONL file per run id under the traces directory.
type TraceRepo struct {
	mu  sync.Mutex
	dir string
}

func (r *TraceRepo) Append(_ context.Context, traces []domain.Trace) error {
	if len(traces) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Traces of one batch share a run id, but group by it anyway so a
	// mixed batch lands in the right files.
	byRun := map[string][]domain.Trace{}
	for _, t := range traces {
		byRun[t.RunID] = append(byRun[t.RunID], t)
	}

	for runID, batch := range byRun {
		if runID == "" {
			runID = "unknown"
		}
		path := filepath.Join(r.dir, "run-"+filepath.Base(runID)+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace log: %w", err)
		}
		enc := json.NewEncoder(f)
		for _, t := range batch {
			if err := enc.Encode(t); err != nil {
				f.Close()
				return fmt.Errorf("append trace: %w", err)
			}
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close trace log: %w", err)
		}
	}
	return nil
}

func (r *TraceRepo) Purge(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("list trace logs: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(r.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
