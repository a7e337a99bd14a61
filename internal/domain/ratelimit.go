package domain

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of counting one verification request
// against the caller's fixed window.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter reports how long a throttled verifier has to wait before its
// window resets. Zero when the request was allowed or the window already
// elapsed.
func (d RateLimitDecision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.ResetAt.IsZero() {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// VerifierKey shapes the limiter key for a verification endpoint. Windows
// are per caller address so one noisy verifier cannot starve the rest.
func VerifierKey(endpoint, clientIP string) string {
	return "endpoint:" + endpoint + ":ip:" + clientIP
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
