// ABOUTME: Second-boundary aligned scheduler for the broadcast action
// ABOUTME: Self-corrects for send jitter by sleeping to absolute deadlines
package beacon

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Action is invoked once per scheduled tick with the capture time.
// Errors are logged and counted by the scheduler, never propagated:
// one failed broadcast must not stop future broadcasts.
type Action func(now time.Time) error

// Scheduler repeatedly invokes an action so that each invocation begins
// as close as possible to an exact second boundary, regardless of how
// long the previous invocation took. If an invocation overruns a full
// second the loop runs back-to-back until it catches up; that is a
// degraded mode, not an error.
type Scheduler struct {
	clock  Clock
	action Action

	sent   atomic.Int64
	failed atomic.Int64
}

// NewScheduler creates an aligned scheduler driving action on clock
func NewScheduler(action Action, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{clock: clock, action: action}
}

// Run drives the loop until ctx is cancelled. In normal operation the
// loop has no termination condition of its own; it runs for the
// lifetime of the process.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := s.clock.Now()
		if err := s.action(now); err != nil {
			s.failed.Add(1)
			log.Printf("Broadcast failed: %v", err)
		} else {
			s.sent.Add(1)
		}

		// Truncating to the containing second and adding one yields the
		// next boundary as an absolute deadline. Sleeping a relative
		// duration here instead would accumulate the action's jitter.
		next := now.Truncate(time.Second).Add(time.Second)
		s.clock.SleepUntil(next)
	}
}

// Stats returns how many invocations succeeded and failed
func (s *Scheduler) Stats() (sent, failed int64) {
	return s.sent.Load(), s.failed.Load()
}
