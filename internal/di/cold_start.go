package di

import (
	"sync/atomic"
	"time"
)

// ColdStartTracker reports whether a request is the first one served by this
// process and how long ago the process started.
type ColdStartTracker struct {
	startedAt time.Time
	served    atomic.Bool
}

func NewColdStartTracker() *ColdStartTracker {
	return &ColdStartTracker{startedAt: time.Now()}
}

// Observe marks a request as served and reports whether it was the first.
func (t *ColdStartTracker) Observe() bool {
	return t.served.CompareAndSwap(false, true)
}

// SinceStart returns the time elapsed since the process started.
func (t *ColdStartTracker) SinceStart() time.Duration {
	return time.Since(t.startedAt)
}
