// Package ratelimit provides fixed-window counters keyed by caller, used to
// throttle login attempts.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(count int64, limit int, ttl time.Duration) Decision {
	if count > int64(limit) {
		if ttl < 0 {
			ttl = 0
		}
		return Decision{Allowed: false, RetryAfter: ttl}
	}

	return Decision{Allowed: true, Remaining: limit - int(count)}
}
