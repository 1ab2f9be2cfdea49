package reply

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles how often turns start. Every turn spends paid API
// calls, so one limiter is shared across chats.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerMinute/60.0), maxBurst)}
}

// Wait blocks until a turn may start or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
