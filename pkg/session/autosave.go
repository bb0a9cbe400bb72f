package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SavePayload is the well-formed unit of one autosave attempt: a
// consistent copy of the value map taken at capture time, never a view of
// in-progress state.
type SavePayload struct {
	SessionID     string
	SchemaID      string
	SchemaVersion string
	Values        map[string]any
	CapturedAt    time.Time

	seq uint64
}

// Saver persists an autosave payload. Implementations perform external
// I/O; transient failures should be retried by the saver itself (see the
// store package's retrying wrapper), the session only surfaces outcomes.
type Saver interface {
	Save(ctx context.Context, payload SavePayload) error
}

// SaverFunc adapts a function into a Saver.
type SaverFunc func(ctx context.Context, payload SavePayload) error

// Save delegates to the underlying function.
func (fn SaverFunc) Save(ctx context.Context, payload SavePayload) error {
	return fn(ctx, payload)
}

// autosaver implements the debounce discipline: a pending timer is reset
// on every update and fires only after a quiet period. At most one save
// attempt is in flight; an update arriving mid-flight does not cancel the
// attempt but guarantees a follow-up once it completes, so no edit is
// ever silently dropped.
type autosaver struct {
	session *Session
	saver   Saver
	quiet   time.Duration
	timeout time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	pending  bool
	stopped  bool

	wg sync.WaitGroup
}

func (a *autosaver) schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.timer == nil {
		a.timer = time.AfterFunc(a.quiet, a.fire)
		return
	}
	a.timer.Reset(a.quiet)
}

func (a *autosaver) fire() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	if a.inFlight {
		// The quiet period elapsed during an attempt; rearm afterwards.
		a.pending = true
		a.mu.Unlock()
		return
	}

	payload, ok := a.session.savePayload()
	if !ok {
		a.mu.Unlock()
		return
	}

	a.inFlight = true
	a.wg.Add(1)
	a.mu.Unlock()

	go a.attempt(payload)
}

func (a *autosaver) attempt(payload SavePayload) {
	defer a.wg.Done()

	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	started := time.Now()
	err := a.saver.Save(ctx, payload)

	logger := a.session.logger.With(zap.Duration("elapsed", time.Since(started)))
	if err != nil {
		logger.Warn("autosave attempt failed", zap.Error(err))
	} else {
		logger.Debug("autosave attempt succeeded")
		a.session.markSaved(payload)
	}

	a.mu.Lock()
	a.inFlight = false
	rearm := a.pending && !a.stopped
	a.pending = false
	a.mu.Unlock()

	if rearm {
		a.schedule()
	}
}

func (a *autosaver) stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()

	a.wg.Wait()
}
