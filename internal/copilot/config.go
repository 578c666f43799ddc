package copilot

import (
	"errors"
	"fmt"
	"time"
)

// NumSlots is the number of slots in a window.
const NumSlots = 5

// SendKind selects the default message a slot falls back to.
type SendKind string

const (
	SendNone    SendKind = "none"
	SendRegular SendKind = "regular"
	SendBasic   SendKind = "basic"
)

// SlotDefault is the configured fallback for one slot.
type SlotDefault struct {
	Disposition Disposition
	Send        SendKind
}

// Config controls window timing and slot defaults.
type Config struct {
	// StartMinute is the minute within each ten-minute decade that windows
	// start on, 0 to 9.
	StartMinute int
	// ScriptAllowance is the time reserved before the window for slot 1's script.
	ScriptAllowance time.Duration
	// Warmup is the radio warm-up lead time.
	Warmup time.Duration
	// SlotSpacing separates consecutive periods.
	SlotSpacing time.Duration
	// FinalSlotCutoff bounds slot 5's transmission, measured from its own start.
	FinalSlotCutoff time.Duration
	// Compressed fires all periods 1µs apart.
	Compressed bool
	// TestMode collects marks into mark lists and keeps window reports out of
	// the log.
	TestMode bool
	Slots    [NumSlots]SlotDefault
}

var (
	ErrStartMinute   = errors.New("start minute must be between 0 and 9")
	ErrDuration      = errors.New("durations must not be negative")
	ErrSlotSpacing   = errors.New("slot spacing must be positive")
	ErrFinalCutoff   = errors.New("final slot cutoff must not exceed slot spacing")
	ErrNoDefaultSend = errors.New("default disposition needs a default message")
)

// DefaultConfig returns the standard layout: windows at minute 0 of each
// decade, 2 s script allowance, 30 s warm-up, 2 min slots, 1 min final cutoff,
// slot 1 defaulting to regular telemetry and slot 2 to basic telemetry.
func DefaultConfig() Config {
	cfg := Config{
		StartMinute:     0,
		ScriptAllowance: 2 * time.Second,
		Warmup:          30 * time.Second,
		SlotSpacing:     2 * time.Minute,
		FinalSlotCutoff: time.Minute,
	}
	cfg.Slots[0] = SlotDefault{Disposition: DispositionDefault, Send: SendRegular}
	cfg.Slots[1] = SlotDefault{Disposition: DispositionDefault, Send: SendBasic}
	for i := 2; i < NumSlots; i++ {
		cfg.Slots[i] = SlotDefault{Disposition: DispositionNone, Send: SendNone}
	}
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StartMinute < 0 || c.StartMinute > 9 {
		return fmt.Errorf("%w: got %d", ErrStartMinute, c.StartMinute)
	}
	if c.ScriptAllowance < 0 || c.Warmup < 0 || c.FinalSlotCutoff < 0 {
		return ErrDuration
	}
	if c.SlotSpacing <= 0 {
		return ErrSlotSpacing
	}
	if c.FinalSlotCutoff > c.SlotSpacing {
		return ErrFinalCutoff
	}
	for i, s := range c.Slots {
		switch s.Send {
		case SendNone, SendRegular, SendBasic, "":
		default:
			return fmt.Errorf("slot%d: unknown default send %q", i+1, s.Send)
		}
		if s.Disposition == DispositionDefault && (s.Send == SendNone || s.Send == "") {
			return fmt.Errorf("slot%d: %w", i+1, ErrNoDefaultSend)
		}
	}
	return nil
}

// SlotName returns the name of slot k, 1-based.
func SlotName(k int) string {
	return fmt.Sprintf("slot%d", k)
}
