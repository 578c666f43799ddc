// Package timeline records the ordered, timestamped events of one scheduling
// run and renders them as a report.
package timeline

import (
	"github.com/skytrace/copilot/internal/systime"
	"github.com/skytrace/copilot/pkg/logger"
)

// Entry is one recorded event.
type Entry struct {
	Name string `json:"name"`
	AtUs uint64 `json:"atUs"`
}

// Clock supplies timestamps.
type Clock interface {
	NowUs() uint64
}

// Timeline is an append-only event log that is reset at the start of every run.
type Timeline struct {
	clock   Clock
	entries []Entry
}

func New(clock Clock) *Timeline {
	return &Timeline{clock: clock}
}

// Reset discards all entries.
func (t *Timeline) Reset() {
	t.entries = t.entries[:0]
}

// Event records name at the current time and returns the timestamp.
func (t *Timeline) Event(name string) uint64 {
	now := t.clock.NowUs()
	t.entries = append(t.entries, Entry{Name: name, AtUs: now})
	return now
}

// Entries returns a copy of the recorded entries.
func (t *Timeline) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.entries) }

// Report logs every entry with its offset from the first entry and from the
// previous one. notional, when set, adds the wall-clock time of each entry.
func (t *Timeline) Report(l logger.Logger, title string, notional func(uint64) string) {
	if len(t.entries) == 0 {
		l.Info("%s: no events", title)
		return
	}
	first := t.entries[0].AtUs
	prev := first
	l.Info("%s: %d events", title, len(t.entries))
	for _, e := range t.entries {
		when := ""
		if notional != nil {
			when = "[" + notional(e.AtUs) + "] "
		}
		l.Info("  %s+%s (+%s) %s",
			when,
			systime.FormatDuration(e.AtUs-first),
			systime.FormatDuration(e.AtUs-prev),
			e.Name,
		)
		prev = e.AtUs
	}
}

// ContainsSubsequence reports whether want appears in entries in order,
// possibly interleaved with other names. On failure it returns the index in
// want of the first name that could not be matched.
func ContainsSubsequence(entries []Entry, want []string) (bool, int) {
	i := 0
	for _, e := range entries {
		if i == len(want) {
			break
		}
		if e.Name == want[i] {
			i++
		}
	}
	if i == len(want) {
		return true, -1
	}
	return false, i
}
