package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lunabay/chapter-engine/pkg/state"
	"github.com/redis/go-redis/v9"
)

// Checkpoints outlive a play session but not forever; a stale attempt is
// resumable for a month.
const progressTTL = 30 * 24 * time.Hour

// RedisStore implements ProgressStore using Redis.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStore implements ProgressStore interface
var _ ProgressStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-backed progress store.
func NewRedisStore(redisURL string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	return &RedisStore{
		client: rdb,
		logger: logger,
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func progressKey(attemptID uuid.UUID) string {
	return "progress:" + attemptID.String()
}

func (r *RedisStore) SaveProgress(ctx context.Context, attemptID uuid.UUID, progress *state.PlayerProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		r.logger.Error("Failed to marshal progress", "attempt_id", attemptID, "error", err)
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	if err := r.client.Set(ctx, progressKey(attemptID), string(data), progressTTL).Err(); err != nil {
		r.logger.Error("Failed to save progress", "attempt_id", attemptID, "error", err)
		return fmt.Errorf("failed to save progress: %w", err)
	}

	return nil
}

func (r *RedisStore) LoadProgress(ctx context.Context, attemptID uuid.UUID) (*state.PlayerProgress, error) {
	cmd := r.client.Get(ctx, progressKey(attemptID))
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Failed to load progress", "attempt_id", attemptID, "error", err)
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	var progress state.PlayerProgress
	if err := json.Unmarshal([]byte(cmd.Val()), &progress); err != nil {
		r.logger.Error("Failed to unmarshal progress", "attempt_id", attemptID, "error", err)
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}

	return &progress, nil
}

func (r *RedisStore) DeleteProgress(ctx context.Context, attemptID uuid.UUID) error {
	if err := r.client.Del(ctx, progressKey(attemptID)).Err(); err != nil {
		r.logger.Error("Failed to delete progress", "attempt_id", attemptID, "error", err)
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	return nil
}
