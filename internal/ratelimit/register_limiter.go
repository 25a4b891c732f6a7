// Package ratelimit guards the unauthenticated registration endpoint
// with a redis-backed token bucket keyed by client IP.
package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/zerocost/portal/internal/config"
)

type RegisterLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewRegisterLimiter(cfg config.Config, client *redis.Client) *RegisterLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return &RegisterLimiter{}
	}
	if limitCfg.RegisterRate <= 0 || limitCfg.RegisterBurst <= 0 {
		return &RegisterLimiter{}
	}

	return &RegisterLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.RegisterRate,
		burst:   limitCfg.RegisterBurst,
	}
}

func (l *RegisterLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow fails open: registration is idempotent, so letting a request
// through on a redis error is cheaper than blocking legitimate signups.
func (l *RegisterLimiter) Allow(ctx context.Context, clientIP string) (*Result, error) {
	if !l.Enabled() || clientIP == "" {
		return &Result{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, "register:ip:"+clientIP, l.rate, l.burst)
	if err != nil {
		return &Result{Allowed: true}, err
	}
	return res, nil
}
