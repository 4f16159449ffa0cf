// Package clock abstracts the monotonic time source used by the control
// loop, the debouncer and the mock actuator.
package clock

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Clock tells the time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.  time.Now carries a monotonic reading, so
// differences between two Now calls are immune to wall clock steps.
var System Clock = backoff.SystemClock

// Manual is a Clock that only moves when told to.  It is safe for
// concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current reading.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
