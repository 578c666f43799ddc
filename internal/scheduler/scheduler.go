package scheduler

import (
	"context"
	"errors"
	"time"
)

const maxSleepCap = 60 * time.Second

var ErrLoopStopped = errors.New("scheduler: loop stopped")

// Queue is a min-heap of armed events keyed by absolute system microseconds.
type Queue struct {
	h   eventHeap
	seq uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// NewEvent creates an unarmed event handle that calls fn when it fires.
func (q *Queue) NewEvent(name string, fn func()) *Event {
	return &Event{name: name, fn: fn, index: -1}
}

// Arm schedules e to fire at atUs. An armed event is moved to the new time
// and loses its place among events armed for the same instant.
func (q *Queue) Arm(e *Event, atUs uint64) {
	q.seq++
	e.at = atUs
	e.seq = q.seq
	heapArm(&q.h, e)
}

// Next returns the time of the earliest armed event.
func (q *Queue) Next() (uint64, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].at, true
}

// Len returns the number of armed events.
func (q *Queue) Len() int { return len(q.h) }

// RunDue fires, in order, every event armed at or before nowUs, including
// events that callbacks arm at or before nowUs. It returns how many fired.
func (q *Queue) RunDue(nowUs uint64) int {
	n := 0
	for len(q.h) > 0 && q.h[0].at <= nowUs {
		e := heapPop(&q.h)
		n++
		if e.fn != nil {
			e.fn()
		}
	}
	return n
}

// RunUntil drives q on virtual time: it moves clock to each event's time in
// turn and fires it, stopping once the next event lies beyond untilUs. The
// clock is left at untilUs. It returns how many events fired.
func RunUntil(q *Queue, clock SettableClock, untilUs uint64) int {
	n := 0
	for {
		at, ok := q.Next()
		if !ok || at > untilUs {
			break
		}
		clock.Set(at)
		n += q.RunDue(clock.NowUs())
	}
	clock.Set(untilUs)
	return n
}

// Loop runs a Queue in real time on a single goroutine. Callbacks, and any
// function handed to Post, run on that goroutine one at a time.
type Loop struct {
	q     *Queue
	clock Clock
	post  chan func()
	done  chan struct{}
}

// NewLoop creates a loop over q. Run must be called to start it.
func NewLoop(q *Queue, clock Clock) *Loop {
	return &Loop{
		q:     q,
		clock: clock,
		post:  make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

// Post queues fn to run on the loop goroutine. It returns false once the loop
// has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.post <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(finished)
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the loop goroutine. It sleeps until the earliest event is due, capped
// at maxSleepCap, and returns when ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		next, ok := l.q.Next()
		if !ok {
			// nothing armed, wait for a post
			return nil
		}
		var dur time.Duration
		if now := l.clock.NowUs(); next > now {
			dur = time.Duration(next-now) * time.Microsecond
		}
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fn := <-l.post:
			fn()
			timerCh = resetTimer()

		case <-timerCh:
			l.q.RunDue(l.clock.NowUs())
			timerCh = resetTimer()
		}
	}
}
