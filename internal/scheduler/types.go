package scheduler

// Event is a persistent one-shot timer handle. It is created once per name and
// re-armed every window rather than reallocated.
type Event struct {
	name string
	fn   func()
	// at is the absolute system time in microseconds the event is armed for.
	at uint64
	// seq orders events armed for the same instant. It is taken from the
	// queue's counter on every Arm.
	seq uint64
	// index is the event's position in the heap, -1 when not armed.
	index int
}

// Name returns the event's name.
func (e *Event) Name() string { return e.name }

// At returns the time the event was last armed for.
func (e *Event) At() uint64 { return e.at }

// Armed reports whether the event is waiting to fire.
func (e *Event) Armed() bool { return e.index >= 0 }

// Clock is the monotonic microsecond clock a Loop runs against.
type Clock interface {
	NowUs() uint64
}

// SettableClock is a virtual clock that RunUntil can move forward.
type SettableClock interface {
	Clock
	Set(us uint64)
}
