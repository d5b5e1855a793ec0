package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks run synchronously inside
// Advance, in firing order, so timer-driven code is deterministic in tests.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*fakeTimer
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:    start,
		timers: make(map[int]*fakeTimer),
	}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Every registers a periodic task; the first run is one interval from now.
func (f *Fake) Every(interval time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	interval = clamp(interval)
	f.seq++
	t := &fakeTimer{
		clock:    f,
		id:       f.seq,
		interval: interval,
		next:     f.now.Add(interval),
		fn:       fn,
	}
	f.timers[t.id] = t
	return t
}

// Active returns the number of timers that have not been stopped.
func (f *Fake) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Advance moves time forward by d, firing every due callback in order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		t := f.nextDue(target)
		if t == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = t.next
		t.next = t.next.Add(t.interval)
		fn := t.fn
		f.mu.Unlock()

		fn()
	}
}

// nextDue returns the earliest timer due at or before target. Caller holds mu.
func (f *Fake) nextDue(target time.Time) *fakeTimer {
	due := make([]*fakeTimer, 0, len(f.timers))
	for _, t := range f.timers {
		if !t.next.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].id < due[j].id
		}
		return due[i].next.Before(due[j].next)
	})
	return due[0]
}

type fakeTimer struct {
	clock    *Fake
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

func (t *fakeTimer) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.timers, t.id)
}
