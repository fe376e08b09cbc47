// Package scheduler runs the deferred "round expired" action of the engine.
package scheduler

import (
	"time"
)

// Token identifies one scheduled action so it can be cancelled.
type Token string

// RoundScheduler runs an action once after a delay, on its own goroutine.
//
// Cancel is best effort: an action that already started (or starts while
// Cancel runs) is not interrupted. Callers make the action itself idempotent.
type RoundScheduler interface {
	ScheduleAfter(delay time.Duration, action func()) (Token, error)
	Cancel(token Token)
	Shutdown() error
}
