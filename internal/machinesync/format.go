package machinesync

import (
	"fmt"
	"time"
)

const msPerMinute = int64(time.Minute / time.Millisecond)

// FormatElapsed describes how long a run has been going. Minutes are floored.
func FormatElapsed(start *time.Time, now time.Time) string {
	if start == nil || start.IsZero() {
		return "Recently activated"
	}
	elapsedMs := now.Sub(*start).Milliseconds()
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	minutes := elapsedMs / msPerMinute
	if minutes < 60 {
		return fmt.Sprintf("Active for %d minutes", minutes)
	}
	return fmt.Sprintf("Active for %dh %dm", minutes/60, minutes%60)
}

// FormatRemaining describes the time left in a run with an estimated
// duration in minutes. Partial minutes round up; a run at or past its
// estimate reads "Cycle complete". Without a start time or an estimate it
// falls back to FormatElapsed.
func FormatRemaining(start *time.Time, estimatedMinutes *int, now time.Time) string {
	if start == nil || start.IsZero() || estimatedMinutes == nil {
		return FormatElapsed(start, now)
	}
	remainingMs := int64(*estimatedMinutes)*msPerMinute - now.Sub(*start).Milliseconds()
	if remainingMs <= 0 {
		return "Cycle complete"
	}
	minutes := (remainingMs + msPerMinute - 1) / msPerMinute
	return fmt.Sprintf("%d min remaining", minutes)
}
