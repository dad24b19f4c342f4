// Package clock holds the pure arithmetic used by the Game Engine to
// account for shared-clock time control (spec §4.5, move clock update).
// Nothing here touches the Store, the Timer Service, or wall-clock time
// directly — every function takes "now" as a parameter so the engine
// remains the only place that reads the system clock.
package clock

import "time"

// Elapse subtracts the duration between lastMoveTime and now from remaining,
// with microsecond precision (spec §3: "remaining durations with
// microsecond resolution"). Returns the new remaining duration, which may be
// negative or zero — the caller is responsible for treating <= 0 as a
// time-loss.
func Elapse(remaining time.Duration, lastMoveTime, now time.Time) time.Duration {
	spent := now.Sub(lastMoveTime).Truncate(time.Microsecond)
	return remaining - spent
}

// IsExpired reports whether a remaining clock duration has reached or
// crossed zero.
func IsExpired(remaining time.Duration) bool {
	return remaining <= 0
}

// TimeIsUpETA computes the absolute time at which a side's time_is_up timer
// should fire, given its current remaining clock (spec §4.5 step 7).
func TimeIsUpETA(now time.Time, remaining time.Duration) time.Time {
	return now.Add(remaining)
}
