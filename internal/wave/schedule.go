// Package wave holds the scheduling arithmetic for wave placement: label
// sequencing, start/end window computation, and the capacity rule. It has
// no I/O so the store can apply it inside a transaction and tests can
// exercise it directly.
package wave

import "time"

const (
	DefaultCapacity       = 3
	DefaultOverlapMinutes = 10

	// Duration is the fixed span from a wave's start to its end. It is
	// independent of the configured overlap and capacity.
	Duration = 15 * time.Minute
)

// FirstLabel is the label of the first wave created in a session.
const FirstLabel = "A"

// NextLabel returns the label that follows prev in creation order.
// Labels advance A, B, ..., Z, AA, AB, ... like spreadsheet columns.
// An empty prev yields FirstLabel.
func NextLabel(prev string) string {
	if prev == "" {
		return FirstLabel
	}
	letters := []byte(prev)
	for i := len(letters) - 1; i >= 0; i-- {
		if letters[i] < 'Z' {
			letters[i]++
			return string(letters)
		}
		letters[i] = 'A'
	}
	return "A" + string(letters)
}

// Window is the computed time box for a new wave.
type Window struct {
	Start time.Time
	End   time.Time
}

// PlanWindow computes the window for the next wave. When the latest wave
// has a start time the new wave starts overlapMinutes after it, so waves
// may overlap or run back to back. With no prior wave (or a wave that
// somehow lacks a start time) the new wave starts now.
func PlanWindow(latestStart time.Time, overlapMinutes int, now time.Time) Window {
	start := now
	if !latestStart.IsZero() {
		start = latestStart.Add(time.Duration(overlapMinutes) * time.Minute)
	}
	return Window{Start: start, End: start.Add(Duration)}
}

// HasRoom reports whether a wave holding count patients can admit one more
// under the session's capacity.
func HasRoom(count, capacity int) bool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return count < capacity
}
