// Package clock provides the time source and periodic-task scheduling used by
// the quote countdown and transfer status polling.
package clock

import (
	"sync"
	"time"
)

// Timer is a running periodic task.
type Timer interface {
	// Stop cancels the task. It is safe to call more than once and from
	// inside the task's own callback.
	Stop()
}

// Clock is the time source components depend on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Every runs fn once per interval until the returned Timer is stopped.
	Every(interval time.Duration, fn func()) Timer
}

// MinInterval is the shortest period Every accepts; shorter ones are raised to it.
const MinInterval = time.Millisecond

func clamp(interval time.Duration) time.Duration {
	return max(interval, MinInterval)
}

// Real is a Clock backed by the runtime timer facility.
type Real struct{}

// New returns the real clock.
func New() Real {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Every starts a ticker goroutine that calls fn on each tick.
func (Real) Every(interval time.Duration, fn func()) Timer {
	t := &realTimer{
		ticker: time.NewTicker(clamp(interval)),
		done:   make(chan struct{}),
	}
	go t.loop(fn)
	return t
}

type realTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTimer) loop(fn func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// Stop may race with a pending tick; recheck before running.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *realTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
