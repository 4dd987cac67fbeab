// Package ratelimit throttles failed logins per client address using Redis
// fixed-window counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")

type Config struct {
	MaxFailures int
	Window      time.Duration
	Prefix      string
}

type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "login-ip:"
	}
	return &Limiter{redis: client, config: cfg}
}

func (l *Limiter) key(ip string) string { return l.config.Prefix + ip }

// Allow reports whether ip still has failed-login budget left.
func (l *Limiter) Allow(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return true, nil
	}
	count, err := l.redis.Get(ctx, l.key(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return true, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count < int64(l.config.MaxFailures), nil
}

// Failure counts one failed login for ip. The window starts at the first
// failure.
func (l *Limiter) Failure(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(ip)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(ip), l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

func (l *Limiter) Reset(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
