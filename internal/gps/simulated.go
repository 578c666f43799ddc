package gps

import (
	"sync"
	"time"
)

// Simulated is a receiver that answers every lock request with a fix built
// from a clock. It stands in for hardware on the bench and in tests.
type Simulated struct {
	mu       sync.Mutex
	now      func() time.Time
	delay    time.Duration
	quality  Quality
	onLock   func(Fix)
	requests int
	after    func(time.Duration, func())
}

// NewSimulated returns a receiver that reports a fix of quality q, taken from
// now(), delay after each request. A zero delay delivers synchronously.
func NewSimulated(now func() time.Time, delay time.Duration, q Quality) *Simulated {
	if now == nil {
		now = time.Now
	}
	return &Simulated{
		now:     now,
		delay:   delay,
		quality: q,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// SetOnLock registers the lock callback.
func (s *Simulated) SetOnLock(fn func(Fix)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLock = fn
}

// SetQuality changes the quality reported on subsequent locks.
func (s *Simulated) SetQuality(q Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = q
}

// Requests returns how many locks have been requested.
func (s *Simulated) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// RequestNewLock schedules delivery of a fix. A QualityNone receiver never answers.
func (s *Simulated) RequestNewLock() {
	s.mu.Lock()
	s.requests++
	q := s.quality
	delay := s.delay
	s.mu.Unlock()
	if q == QualityNone {
		return
	}
	if delay == 0 {
		s.fire(q)
		return
	}
	s.after(delay, func() { s.fire(q) })
}

func (s *Simulated) fire(q Quality) {
	s.mu.Lock()
	fn := s.onLock
	fix := FixFromTime(s.now(), q)
	s.mu.Unlock()
	if fn != nil {
		fn(fix)
	}
}

// Close is a no-op.
func (s *Simulated) Close() error {
	return nil
}
