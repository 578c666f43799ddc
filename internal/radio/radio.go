// Package radio drives the transmitter's enable line. The GPIO
// implementation needs the Linux character device; Fake serves tests and
// bench runs.
package radio

import (
	"sync"

	"github.com/skytrace/copilot/pkg/logger"
)

// Line is an output the radio can be switched with.
type Line interface {
	SetValue(int) error
	Close() error
}

// Radio switches the transmitter through an enable line. Errors from the
// line are logged; the radio's own state follows the last request.
type Radio struct {
	mu     sync.Mutex
	line   Line
	l      logger.Logger
	active bool
}

// New wraps an enable line, starting with the radio off.
func New(line Line, l logger.Logger) *Radio {
	r := &Radio{line: line, l: l}
	r.set(0)
	return r
}

// IsActive reports whether the radio was last started.
func (r *Radio) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// StartWarmup powers the transmitter so it is stable by the next slot.
func (r *Radio) StartWarmup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.set(1)
}

// Stop powers the transmitter down.
func (r *Radio) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.set(0)
}

func (r *Radio) set(v int) {
	if err := r.line.SetValue(v); err != nil {
		r.l.Error("radio: set enable line %d: %v", v, err)
	}
}

// Close drives the line low and releases it.
func (r *Radio) Close() error {
	r.Stop()
	return r.line.Close()
}
