// Package systime keeps the device's two time domains apart: a monotonic
// system microsecond counter that all scheduling is expressed in, and a
// notional wall-clock time that is realigned to GPS on every lock.
package systime

import (
	"fmt"
	"sync"
	"time"

	"github.com/skytrace/copilot/internal/gps"
)

// Source is the time source the scheduler consumes.
type Source interface {
	// NowUs returns monotonic system time in microseconds.
	NowUs() uint64
	// SetFromGps aligns notional time to the fix at the current system time
	// and returns the correction applied in microseconds (positive when the
	// prior notional clock was running slow).
	SetFromGps(fix gps.Fix) int64
	// SystemUsAtLastTimeChange returns the system time of the last SetFromGps.
	SystemUsAtLastTimeChange() uint64
	// NotionalAt renders a system time as notional wall-clock time.
	NotionalAt(systemUs uint64) string
}

// notional is shared bookkeeping between the real and fake sources.
type notional struct {
	mu sync.Mutex
	// notional µs since the unix epoch at system time baseSystemUs
	baseNotionalUs int64
	baseSystemUs   uint64
	changed        bool
}

func (n *notional) set(fix gps.Fix, nowUs uint64) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	target := fix.Time().UnixMicro()
	prior := n.baseNotionalUs + int64(nowUs) - int64(n.baseSystemUs)
	n.baseNotionalUs = target
	n.baseSystemUs = nowUs
	if !n.changed {
		n.changed = true
		return 0
	}
	return target - prior
}

func (n *notional) lastChange() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.baseSystemUs
}

func (n *notional) at(systemUs uint64) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	us := n.baseNotionalUs + int64(systemUs) - int64(n.baseSystemUs)
	return time.UnixMicro(us).UTC().Format("2006-01-02 15:04:05.000")
}

// Monotonic is the production Source backed by the Go monotonic clock.
type Monotonic struct {
	start time.Time
	n     notional
}

// NewMonotonic starts a system clock at zero. Until the first GPS lock the
// notional clock follows the host wall clock.
func NewMonotonic() *Monotonic {
	m := &Monotonic{start: time.Now()}
	m.n.baseNotionalUs = m.start.UnixMicro()
	return m
}

func (m *Monotonic) NowUs() uint64 {
	return uint64(time.Since(m.start).Microseconds())
}

func (m *Monotonic) SetFromGps(fix gps.Fix) int64 {
	return m.n.set(fix, m.NowUs())
}

func (m *Monotonic) SystemUsAtLastTimeChange() uint64 {
	return m.n.lastChange()
}

func (m *Monotonic) NotionalAt(systemUs uint64) string {
	return m.n.at(systemUs)
}

// NotionalNow returns current notional time.
func (m *Monotonic) NotionalNow() time.Time {
	m.n.mu.Lock()
	defer m.n.mu.Unlock()
	us := m.n.baseNotionalUs + int64(m.NowUs()) - int64(m.n.baseSystemUs)
	return time.UnixMicro(us).UTC()
}

// Fake is a manually advanced Source for tests and virtual-time runs.
type Fake struct {
	mu  sync.Mutex
	now uint64
	n   notional
}

// NewFake returns a fake clock at system time start.
func NewFake(start uint64) *Fake {
	return &Fake{now: start}
}

func (f *Fake) NowUs() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to us. Moving backwards is ignored.
func (f *Fake) Set(us uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if us > f.now {
		f.now = us
	}
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += uint64(d.Microseconds())
}

func (f *Fake) SetFromGps(fix gps.Fix) int64 {
	return f.n.set(fix, f.NowUs())
}

func (f *Fake) SystemUsAtLastTimeChange() uint64 {
	return f.n.lastChange()
}

func (f *Fake) NotionalAt(systemUs uint64) string {
	return f.n.at(systemUs)
}

// FormatDuration renders a microsecond duration as e.g. "00:00:10.000".
func FormatDuration(us uint64) string {
	d := time.Duration(us) * time.Microsecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}

var (
	_ Source = (*Monotonic)(nil)
	_ Source = (*Fake)(nil)
)
