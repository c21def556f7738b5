package throttle

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps counters in Redis so every process sharing the server sees the
// same budget.
type Redis struct {
	client redis.UniversalClient
	config Config
}

// NewRedis validates cfg and returns a Redis-backed throttle.
func NewRedis(client redis.UniversalClient, cfg Config) (*Redis, error) {
	if client == nil {
		return nil, errors.New("throttle: nil redis client")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Redis{client: client, config: cfg}, nil
}

// Check describes the check operation and its observable behavior.
//
// Check reports ErrRateLimited without counting an attempt. A missing key
// is within budget.
func (r *Redis) Check(ctx context.Context, key string) error {
	count, err := r.client.Get(ctx, r.config.Prefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(r.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Fail records one failure and reports ErrRateLimited when the budget is
// now exhausted.
func (r *Redis) Fail(ctx context.Context, key string) error {
	k := r.config.Prefix + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Fixed window: only the first hit sets the expiry.
	if count == 1 {
		if err := r.client.Expire(ctx, k, r.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= int64(r.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter for key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.config.Prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
