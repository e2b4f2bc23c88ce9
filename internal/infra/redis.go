package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/loanpilot/sentinel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a redis client from the configured URL.
func NewRedisClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// BaselineCache is a read-through cache of behavior baselines in Redis.
// Misses and redis failures fall back to the repository; the cache is never
// authoritative.
type BaselineCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewBaselineCache wraps a redis client as a baseline cache.
func NewBaselineCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *BaselineCache {
	return &BaselineCache{client: client, ttl: ttl, logger: logger}
}

func baselineKey(userID string) string {
	return "baseline:" + userID
}

// Get returns the cached baseline for a user, or nil on miss. Redis errors are
// logged and reported as misses.
func (c *BaselineCache) Get(ctx context.Context, userID string) *domain.BehaviorBaseline {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, baselineKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("baseline cache read failed", "user_id", userID, "error", err)
		}
		return nil
	}

	var b domain.BehaviorBaseline
	if err := json.Unmarshal(raw, &b); err != nil {
		c.logger.Warn("baseline cache entry corrupt", "user_id", userID, "error", err)
		return nil
	}
	return &b
}

// Set stores a baseline with the configured TTL. Failures are logged only.
func (c *BaselineCache) Set(ctx context.Context, baseline *domain.BehaviorBaseline) {
	if c == nil || c.client == nil || baseline == nil {
		return
	}

	raw, err := json.Marshal(baseline)
	if err != nil {
		c.logger.Warn("baseline cache marshal failed", "user_id", baseline.UserID, "error", err)
		return
	}
	if err := c.client.Set(ctx, baselineKey(baseline.UserID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("baseline cache write failed", "user_id", baseline.UserID, "error", err)
	}
}

// Invalidate drops the cached baseline after an update.
func (c *BaselineCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, baselineKey(userID)).Err(); err != nil {
		c.logger.Warn("baseline cache invalidate failed", "user_id", userID, "error", err)
	}
}

// VerificationStore flags users who must pass additional verification. The
// flag is written by the verification worker and read by the CRM session
// gateway; it expires on its own so a missed clear cannot lock a user out.
type VerificationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVerificationStore wraps a redis client as a pending-verification store.
func NewVerificationStore(client *redis.Client, ttl time.Duration) *VerificationStore {
	return &VerificationStore{client: client, ttl: ttl}
}

func verificationKey(userID string) string {
	return "verification_pending:" + userID
}

// Mark records that the user owes a step-up verification, with the session
// and score that triggered it.
func (s *VerificationStore) Mark(ctx context.Context, userID, sessionID string, score int) error {
	raw, err := json.Marshal(map[string]interface{}{
		"session_id":    sessionID,
		"anomaly_score": score,
	})
	if err != nil {
		return fmt.Errorf("marshal verification flag: %w", err)
	}
	return s.client.Set(ctx, verificationKey(userID), raw, s.ttl).Err()
}
