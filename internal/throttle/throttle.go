// Package throttle gates calls to a latency-sensitive remote dependency so
// that at most one call is admitted per minimum interval.
//
// A [Throttle] does not queue or delay: a call arriving too early is simply
// rejected and the caller is expected to fall back to a local result. The
// caller supplies the current time, which keeps the gate deterministic under
// test.
package throttle

import (
	"sync"
	"time"
)

// DefaultMinInterval is the spacing used when none is configured.
const DefaultMinInterval = 200 * time.Millisecond

// Throttle admits a call when no call has been admitted yet, or when at least
// the minimum interval has elapsed since the last admitted call. Rejected
// calls leave the state untouched.
//
// It is safe for concurrent use; the check and the update happen under one
// lock so two racing callers cannot both be admitted within one interval.
type Throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
	called      bool
}

// New returns a Throttle that has never admitted a call. A non-positive
// interval selects [DefaultMinInterval].
func New(minInterval time.Duration) *Throttle {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Throttle{minInterval: minInterval}
}

// TryAcquire reports whether a call at now is admitted. An admitted call
// records now as the last call time.
func (t *Throttle) TryAcquire(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.called && now.Sub(t.last) < t.minInterval {
		return false
	}
	t.last = now
	t.called = true
	return true
}

// SetMinInterval changes the spacing for subsequent calls. Non-positive
// values are ignored.
func (t *Throttle) SetMinInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.minInterval = d
	t.mu.Unlock()
}

// MinInterval returns the current spacing.
func (t *Throttle) MinInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minInterval
}

// Reset forgets the last admitted call.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.called = false
	t.mu.Unlock()
}
