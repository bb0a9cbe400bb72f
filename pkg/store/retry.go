package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-ticketform/pkg/session"
)

// AutosaveError reports that a save kept failing after every retry. The
// session layer logs attempts; only exhaustion surfaces as an error.
type AutosaveError struct {
	Attempts int
	Err      error
}

func (e *AutosaveError) Error() string {
	return fmt.Sprintf("store: autosave failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AutosaveError) Unwrap() error {
	return e.Err
}

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 250 * time.Millisecond
	defaultRetryMax      = 5 * time.Second
)

// RetrySaver wraps a session saver with bounded exponential backoff for
// transient persistence failures. Context cancellation aborts the wait
// between attempts.
type RetrySaver struct {
	saver    session.Saver
	attempts int
	base     time.Duration
	max      time.Duration
	logger   *zap.Logger
}

var _ session.Saver = (*RetrySaver)(nil)

// RetryOption customises a RetrySaver.
type RetryOption func(*RetrySaver)

// WithRetryAttempts sets the total attempt count, minimum one.
func WithRetryAttempts(attempts int) RetryOption {
	return func(r *RetrySaver) {
		if attempts > 0 {
			r.attempts = attempts
		}
	}
}

// WithRetryBackoff sets the initial and maximum delay between attempts.
func WithRetryBackoff(base, max time.Duration) RetryOption {
	return func(r *RetrySaver) {
		if base > 0 {
			r.base = base
		}
		if max > 0 {
			r.max = max
		}
	}
}

// WithRetryLogger attaches a structured logger; the default is a no-op
// logger.
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(r *RetrySaver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetrySaver wraps saver with the default three attempts and a 250ms
// doubling backoff capped at five seconds.
func NewRetrySaver(saver session.Saver, opts ...RetryOption) *RetrySaver {
	r := &RetrySaver{
		saver:    saver,
		attempts: defaultRetryAttempts,
		base:     defaultRetryBase,
		max:      defaultRetryMax,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save attempts the underlying save, retrying transient failures with
// exponential backoff until the attempt budget runs out.
func (r *RetrySaver) Save(ctx context.Context, payload session.SavePayload) error {
	delay := r.base
	var lastErr error

	attempt := 0
	for attempt < r.attempts {
		attempt++
		lastErr = r.saver.Save(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}

		r.logger.Warn("save attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("budget", r.attempts),
			zap.Error(lastErr),
		)

		if attempt == r.attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &AutosaveError{Attempts: attempt, Err: ctx.Err()}
		}
		delay *= 2
		if delay > r.max {
			delay = r.max
		}
	}

	return &AutosaveError{Attempts: attempt, Err: lastErr}
}
