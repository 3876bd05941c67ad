package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds issuance limiter tuning parameters.
type Config struct {
	MaxIssuesPerWindow int
	Window             time.Duration
}

// Limiter enforces per-(identifier, purpose) issuance limits for one-time
// codes using Redis counters with fixed-window semantics.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates an issuance [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckIssue records a code issuance for the identifier+purpose pair and
// returns [ErrRateLimited] once the window budget is exhausted.
func (l *Limiter) CheckIssue(ctx context.Context, identifier, purpose string) error {
	count, err := l.incrementWithTTL(ctx, issueKey(identifier, purpose), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxIssuesPerWindow) {
		return ErrRateLimited
	}
	return nil
}

// ResetIssue clears the issuance counter, used after a consumed code.
func (l *Limiter) ResetIssue(ctx context.Context, identifier, purpose string) error {
	if err := l.redis.Del(ctx, issueKey(identifier, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetIssueCount returns the current issuance counter. Missing keys return
// zero and do not reveal account existence.
func (l *Limiter) GetIssueCount(ctx context.Context, identifier, purpose string) (int, error) {
	count, err := l.redis.Get(ctx, issueKey(identifier, purpose)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func issueKey(identifier, purpose string) string {
	return "otpissue:" + purpose + ":" + identifier
}
