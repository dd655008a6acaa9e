package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// SubmitLimiter paces message submission with a token bucket. It implements
// smpp.Throttler.
type SubmitLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	enabled bool
}

// NewSubmitLimiter allows rps submissions per second with bursts of up to
// burst. A non-positive rps disables limiting.
func NewSubmitLimiter(rps float64, burst int) *SubmitLimiter {
	if burst < 1 {
		burst = 1
	}
	return &SubmitLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		enabled: rps > 0,
	}
}

// Wait blocks until a submission is allowed or ctx ends.
func (l *SubmitLimiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	limiter, enabled := l.limiter, l.enabled
	l.mu.RUnlock()

	if !enabled {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// Allow reports whether a submission may happen now and consumes a token if so
func (l *SubmitLimiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.enabled {
		return true
	}
	return l.limiter.Allow()
}

// SetRate changes the rate and burst in place
func (l *SubmitLimiter) SetRate(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter.SetLimit(rate.Limit(rps))
	l.limiter.SetBurst(burst)
	l.enabled = rps > 0
}

// Enabled reports whether submissions are being paced
func (l *SubmitLimiter) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}
