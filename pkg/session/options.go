package session

import (
	"time"

	"go.uber.org/zap"
)

const defaultQuietPeriod = 2 * time.Second

// Option customises a session at creation.
type Option func(*Session)

// WithLogger attaches a structured logger. The session annotates it with
// the session id and schema identity; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAutosave enables debounced background persistence through the given
// saver. A quiet period of zero uses the default of two seconds.
func WithAutosave(saver Saver, quiet time.Duration) Option {
	return func(s *Session) {
		if saver == nil {
			return
		}
		if quiet <= 0 {
			quiet = defaultQuietPeriod
		}
		s.autosave = &autosaver{saver: saver, quiet: quiet}
	}
}

// WithAutosaveTimeout caps the duration of each save attempt. Zero means
// no deadline.
func WithAutosaveTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		if timeout > 0 {
			s.autosaveTimeout = timeout
		}
	}
}
