package network

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token-bucket admission control gate (C2), applied to the
// inbound byte count per tier. It wraps golang.org/x/time/rate, which already
// implements proportional refill since the last check.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter refilling qps tokens per second up to a
// bucket of burst tokens.
func NewRateLimiter(qps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

// TryConsume deducts n tokens if available, refilling proportionally to the
// elapsed time since the last check. Returns false (and deducts nothing) if
// the bucket doesn't currently hold n tokens.
func (r *RateLimiter) TryConsume(n int, now time.Time) bool {
	return r.limiter.AllowN(now, n)
}
