// ABOUTME: Clock abstraction for the aligned scheduler
// ABOUTME: Sleeps to absolute deadlines so variable work does not accumulate drift
package beacon

import "time"

// Clock supplies the scheduler's notion of wall-clock time and its
// suspend primitive. SleepUntil takes an absolute deadline; a deadline
// already in the past returns immediately.
type Clock interface {
	Now() time.Time
	SleepUntil(deadline time.Time)
}

type sourceClock struct {
	now func() time.Time
}

func (c sourceClock) Now() time.Time { return c.now() }

func (c sourceClock) SleepUntil(deadline time.Time) {
	// time.Sleep treats negative durations as zero
	time.Sleep(deadline.Sub(c.now()))
}

// NewClock adapts a time source (e.g. an offset-corrected clock) to the
// scheduler's Clock. Deadlines are interpreted in the source's frame.
func NewClock(now func() time.Time) Clock {
	return sourceClock{now: now}
}

// SystemClock is the uncorrected local wall clock
var SystemClock Clock = sourceClock{now: time.Now}
