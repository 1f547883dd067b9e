// Package interval implements comparisons on half-open time intervals [start, end).
package interval

import "time"

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share at least one
// instant. Intervals that only touch at a boundary do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Contains reports whether t lies within [start, end).
func Contains(start, end, t time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// Valid reports whether end is strictly after start.
func Valid(start, end time.Time) bool {
	return end.After(start)
}
