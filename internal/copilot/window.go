package copilot

import "github.com/skytrace/copilot/internal/gps"

const (
	// DecadeMs is the length of one window cycle.
	DecadeMs = 10 * 60 * 1000
	decadeUs = uint64(DecadeMs) * 1000
)

// ComputeWindowStartUs returns the system time of the next window start: second
// 1, millisecond 0 of startMinute within the ten-minute decade, strictly after
// the fix. A fix exactly on a window start yields the following one.
func ComputeWindowStartUs(startMinute int, fix gps.Fix, systemUsAtFix uint64) uint64 {
	return systemUsAtFix + uint64(windowOffsetMs(startMinute, fix))*1000
}

// windowOffsetMs is the offset from the fix to the next window start, in
// (0, DecadeMs].
func windowOffsetMs(startMinute int, fix gps.Fix) int64 {
	minuteDiff := int64(startMinute - fix.Minute%10)
	secondDiff := int64(1 - fix.Second)
	msDiff := int64(-fix.Millisecond)

	offset := minuteDiff*60_000 + secondDiff*1000 + msDiff
	if offset <= 0 {
		offset += DecadeMs
	}
	return offset
}
