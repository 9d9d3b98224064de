// Package redis offers a Redis-backed checkpoint repository plus a named run
// lock so two generator processes cannot mutate the same checkpoints at once.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edukit/coursegen/internal/core/domain"
	"github.com/edukit/coursegen/internal/infra/storage"
)

const keyPrefix = "coursegen:checkpoint:"

// Client wraps Redis operations for checkpoint storage.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func checkpointKey(dataset string) string {
	return keyPrefix + dataset
}

func lockKey(name string) string {
	return fmt.Sprintf("coursegen:lock:%s", name)
}

// AcquireRunLock attempts to take the named generation lock.
func (c *Client) AcquireRunLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(name), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// RefreshRunLock extends the TTL of a held lock.
func (c *Client) RefreshRunLock(ctx context.Context, name string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, lockKey(name), ttl).Err()
}

// ReleaseRunLock releases the named generation lock.
func (c *Client) ReleaseRunLock(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, lockKey(name)).Err()
}

// CheckpointRepo implements storage.CheckpointRepository using Redis.
type CheckpointRepo struct {
	rdb *redis.Client
}

// NewCheckpointRepo creates a new Redis-backed checkpoint repository.
func NewCheckpointRepo(client *Client) *CheckpointRepo {
	return &CheckpointRepo{rdb: client.rdb}
}

// Load retrieves the checkpoint document for a dataset.
func (r *CheckpointRepo) Load(ctx context.Context, dataset string) ([]domain.GroupResult, error) {
	data, err := r.rdb.Get(ctx, checkpointKey(dataset)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var groups []domain.GroupResult
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("%w: dataset %s: %v", storage.ErrMalformed, dataset, err)
	}
	return groups, nil
}

// Save rewrites the full checkpoint document for a dataset.
func (r *CheckpointRepo) Save(ctx context.Context, dataset string, groups []domain.GroupResult) error {
	if groups == nil {
		groups = []domain.GroupResult{}
	}
	data, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Checkpoints live until explicitly reset, no TTL.
	if err := r.rdb.Set(ctx, checkpointKey(dataset), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint document for a dataset.
func (r *CheckpointRepo) Delete(ctx context.Context, dataset string) error {
	return r.rdb.Del(ctx, checkpointKey(dataset)).Err()
}

// Datasets lists datasets that have a stored checkpoint.
func (r *CheckpointRepo) Datasets(ctx context.Context) ([]string, error) {
	var (
		names  []string
		cursor uint64
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		for _, key := range keys {
			names = append(names, strings.TrimPrefix(key, keyPrefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(names)
	return names, nil
}
