// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the coordinator from abuse.
package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/roomchat/internal/config"
)

// rateLimiter admits at most Burst frames per RefillInterval, refilled smoothly.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	capacity := cfg.Burst
	if capacity <= 0 {
		capacity = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	perSecond := rate.Limit(float64(capacity) / interval.Seconds())
	return &rateLimiter{limiter: rate.NewLimiter(perSecond, capacity)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
