// Package clock provides the time sources read by the controller.
//
// Controllers only ever subtract two readings from the same [Clock], so the
// values returned by [System] keep Go's monotonic reading and are unaffected
// by wall-clock adjustments. [Manual] lets tests and simulations step time
// explicitly.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the process clock.
func System() Clock {
	return systemClock{}
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d. A negative d moves it backwards.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// AdvanceSeconds is Advance for callers working in float seconds.
func (m *Manual) AdvanceSeconds(s float64) {
	m.Advance(time.Duration(s * float64(time.Second)))
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
