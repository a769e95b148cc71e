package mailindex

import (
	"fmt"
	"time"
)

// Window is a closed range of unix seconds queried as one provider
// time-range search.
type Window struct {
	After  int64
	Before int64
}

// Query returns the provider search expression for the window.
func (w Window) Query() string {
	return fmt.Sprintf("after:%d before:%d", w.After, w.Before)
}

func (w Window) String() string {
	return fmt.Sprintf("%d-%d", w.After, w.Before)
}

// Windows partitions [after, end] into contiguous windows of at most span
// seconds, oldest first. Each window starts one second before the previous
// one ended so messages on a boundary are never missed. The last window
// ends exactly at end. Span must exceed one second; an empty range yields
// no windows.
func Windows(after, end, span int64) []Window {
	if span <= 1 || after >= end {
		return nil
	}

	var out []Window
	for after < end {
		before := min(end, after+span)
		out = append(out, Window{After: after, Before: before})
		if before >= end {
			break
		}
		after = before - 1
	}
	return out
}

// DayOf returns the UTC day bucket of an internal timestamp in milliseconds.
func DayOf(internalMS int64) string {
	return time.UnixMilli(internalMS).UTC().Format(DayLayout)
}

// DayLayout is the format of day buckets.
const DayLayout = "2006-01-02"
