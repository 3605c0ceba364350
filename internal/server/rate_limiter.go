// Package server wraps a token bucket limiter for per-connection throttling.
package server

import (
	"golang.org/x/time/rate"
)

// newRateLimiter returns a limiter that admits cfg.Burst messages per
// cfg.RefillInterval, or nil when rate limiting is disabled.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.Burst <= 0 {
		return nil
	}

	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = defaultRefillInterval
	}

	limit := rate.Limit(float64(cfg.Burst) / interval.Seconds())
	return rate.NewLimiter(limit, cfg.Burst)
}
