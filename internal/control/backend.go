package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edukit/coursegen/internal/generation/health"
	redisclient "github.com/edukit/coursegen/internal/infra/redis"
	"github.com/edukit/coursegen/internal/infra/storage"
	"github.com/edukit/coursegen/internal/infra/storage/file"
	"github.com/edukit/coursegen/internal/infra/storage/memory"
	"github.com/edukit/coursegen/internal/infra/storage/postgres"
)

// Backend is an opened checkpoint storage backend together with the
// connections behind it. DB is set only for postgres; Redis is set whenever
// a redis URL is configured, backend or not, so the run lock can use it.
type Backend struct {
	Store storage.Store
	DB    *postgres.DB
	Redis *redisclient.Client
}

// OpenBackend connects the backend named by the config, or picks one from
// what is configured: postgres when a database URL is set, then redis, then
// local files.
func OpenBackend(cfg Config) (*Backend, error) {
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
	}

	backend := cfg.Checkpoint.Backend
	if backend == "" {
		switch {
		case cfg.Database.URL != "":
			backend = "postgres"
		case redisClient != nil:
			backend = "redis"
		default:
			backend = "file"
		}
	}

	b := &Backend{Redis: redisClient}
	switch backend {
	case "postgres":
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		b.DB = db
		b.Store = postgres.NewStore(db)
		slog.Info("Using PostgreSQL checkpoint storage")
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis backend selected but no redis url configured")
		}
		// Traces stay on disk; Redis only holds the checkpoint documents.
		fileStore, err := file.New(cfg.Checkpoint.Dir)
		if err != nil {
			return nil, err
		}
		b.Store = &redisStore{
			ckpts:  redisclient.NewCheckpointRepo(redisClient),
			traces: fileStore.Traces(),
		}
		slog.Info("Using Redis checkpoint storage", "traces_dir", cfg.Checkpoint.Dir)
	case "memory":
		b.Store = memory.New()
		slog.Info("Using in-memory checkpoint storage")
	case "file":
		store, err := file.New(cfg.Checkpoint.Dir)
		if err != nil {
			return nil, err
		}
		b.Store = store
		slog.Info("Using file checkpoint storage", "dir", cfg.Checkpoint.Dir)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
	return b, nil
}

// Pinger returns a health check for the backend, or nil when it has none.
func (b *Backend) Pinger() health.StorePinger {
	if b.DB != nil {
		return b.DB
	}
	return nil
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	return b.Store.Close()
}

// redisStore pairs Redis checkpoints with file-based traces. The Redis
// client is shared with the run lock, so Backend.Close owns it.
type redisStore struct {
	ckpts  storage.CheckpointRepository
	traces storage.TraceRepository
}

func (s *redisStore) Checkpoints() storage.CheckpointRepository { return s.ckpts }
func (s *redisStore) Traces() storage.TraceRepository           { return s.traces }
func (s *redisStore) Close() error                              { return nil }
