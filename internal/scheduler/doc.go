// Package scheduler provides the absolute-time event facility the window
// scheduler runs on. Events are persistent named handles that are armed at an
// absolute system time in microseconds, fire exactly once per arming, and may
// be re-armed to a new time before they fire. There is no cancellation.
//
// Events armed for the same instant fire in the order they were armed. Re-arming
// an event counts as arming it anew, so an event re-armed to an instant that
// another event already occupies fires after that event. The window scheduler
// relies on this to run GPS reacquisition strictly after the last transmitting
// slot.
//
// A Queue is not safe for concurrent use. In production it is driven by a Loop,
// a single goroutine with a max-sleep-cap that other goroutines hop into with
// Post; tests drive it on virtual time with RunUntil.
package scheduler
