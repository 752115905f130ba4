package limiter

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing RPC attempts with a token bucket.
// A nil *RateLimiter never blocks, so callers can hold one unconditionally.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst. rps <= 0 returns nil (unlimited).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	slog.Debug("rate_limiter_configured", "rps", rps, "burst", burst)
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait 阻塞直到获取令牌（或上下文取消）
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	return rl.limiter.Wait(ctx)
}

// RPS returns the configured requests per second; 0 means unlimited.
func (rl *RateLimiter) RPS() float64 {
	if rl == nil {
		return 0
	}
	return float64(rl.limiter.Limit())
}
