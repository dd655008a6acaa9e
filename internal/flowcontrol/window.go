package flowcontrol

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// WindowConfig defines the configuration for flow control windows
type WindowConfig struct {
	MaxOutstanding int           // Maximum number of requests awaiting a response
	WaitTimeout    time.Duration // Longest wait for a free slot, zero waits for the context only
}

// DefaultWindowConfig returns a default window configuration
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxOutstanding: 10,
		WaitTimeout:    0,
	}
}

// Window bounds the number of outstanding requests of one session. It
// implements smpp.Window.
type Window struct {
	config      WindowConfig
	sem         *semaphore.Weighted
	outstanding atomic.Int64
}

// NewWindow creates a window. MaxOutstanding below one is treated as one.
func NewWindow(config WindowConfig) *Window {
	if config.MaxOutstanding < 1 {
		config.MaxOutstanding = 1
	}
	return &Window{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxOutstanding)),
	}
}

// Acquire waits for a free slot. It returns ErrWindowFull when WaitTimeout
// elapses first, or the context error when ctx ends first.
func (w *Window) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if w.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, w.config.WaitTimeout)
		defer cancel()
	}

	if err := w.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrWindowFull
	}
	w.outstanding.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking
func (w *Window) TryAcquire() bool {
	if !w.sem.TryAcquire(1) {
		return false
	}
	w.outstanding.Add(1)
	return true
}

// Release releases a slot taken by Acquire or TryAcquire
func (w *Window) Release() {
	w.outstanding.Add(-1)
	w.sem.Release(1)
}

// Outstanding returns the current number of outstanding requests
func (w *Window) Outstanding() int64 {
	return w.outstanding.Load()
}

// Size returns the maximum number of outstanding requests
func (w *Window) Size() int {
	return w.config.MaxOutstanding
}

// Errors
var (
	ErrWindowFull = &FlowControlError{Message: "flow control window is full"}
)

// FlowControlError represents a flow control error
type FlowControlError struct {
	Message string
}

func (e *FlowControlError) Error() string {
	return e.Message
}

// IsWindowFull reports whether err is ErrWindowFull
func IsWindowFull(err error) bool {
	return errors.Is(err, ErrWindowFull)
}
