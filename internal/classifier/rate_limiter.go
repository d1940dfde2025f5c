package classifier

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket in front of the classifier backend.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows rps requests per second with bursts of twice that.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), rps*2),
	}
}

// Wait blocks until a request may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may be sent now.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}
