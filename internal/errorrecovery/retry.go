package errorrecovery

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

// RetryConfig defines the configuration for retry logic
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Exponential backoff factor
	JitterFactor  float64       // Random jitter factor (0.0 to 1.0)

	// Retryable decides whether an error is worth another attempt.
	// IsTransient is used when nil.
	Retryable func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// ReconnectConfig derives a retry configuration from the client settings.
func ReconnectConfig(cfg *smpp.ClientConfig) RetryConfig {
	config := DefaultRetryConfig()
	if cfg == nil {
		return config
	}
	config.MaxRetries = cfg.MaxReconnectAttempts
	if cfg.ReconnectInterval > 0 {
		config.InitialDelay = cfg.ReconnectInterval
	}
	return config
}

// IsRetryableError checks if an error should trigger a retry
func (c *RetryConfig) IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return IsTransient(err)
}

// IsTransient reports whether err is a transport failure, a closed session or
// an SMSC refusal that asks the client to try again later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var rejected *smpp.RejectedError
	if errors.As(err, &rejected) {
		switch rejected.Status {
		case smpp.StatusThrottled, smpp.StatusMsgQFul, smpp.StatusSysErr:
			return true
		}
		return false
	}

	if errors.Is(err, smpp.ErrSessionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func(ctx context.Context) error

// RetryResult contains the result of a retry operation
type RetryResult struct {
	Attempts int
	Duration time.Duration
	Error    error
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) RetryResult {
	start := time.Now()
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult{
				Attempts: attempts,
				Duration: time.Since(start),
				Error:    err,
			}
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			return RetryResult{
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}

		lastErr = err

		// If this is the last attempt or error is not retryable, don't retry
		if attempt == config.MaxRetries || !config.IsRetryableError(err) {
			break
		}

		timer := time.NewTimer(calculateDelay(config, attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return RetryResult{
				Attempts: attempts,
				Duration: time.Since(start),
				Error:    ctx.Err(),
			}
		}
	}

	return RetryResult{
		Attempts: attempts,
		Duration: time.Since(start),
		Error:    lastErr,
	}
}

// calculateDelay calculates the delay for the next retry attempt
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	// Exponential backoff: initial_delay * (backoff_factor ^ attempt)
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt))

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.JitterFactor > 0 {
		jitterRange := delay * config.JitterFactor
		jitter := (rand.Float64() - 0.5) * 2 * jitterRange
		delay += jitter
	}

	return time.Duration(delay)
}
