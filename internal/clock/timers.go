// Package clock provides cancellable timer groups on top of a quartz.Clock.
//
// The round engine arms a fresh set of timers for every phase and cancels
// the whole group on each transition, so a timer from an earlier phase can
// never fire into a later one.
package clock

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Handle is a single scheduled callback.
type Handle struct {
	timer *quartz.Timer
	group *Timers

	mu   sync.Mutex
	done bool
}

// Stop cancels the callback. It returns true only for the call that
// prevented the callback from running; later calls, and calls after the
// callback has started, return false.
func (h *Handle) Stop() bool {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return false
	}
	h.done = true
	h.mu.Unlock()

	h.group.forget(h)
	h.timer.Stop()
	return true
}

// claim marks the handle as fired. It reports false when the handle was
// stopped first.
func (h *Handle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	return true
}

// Timers is a group of callbacks that can be cancelled together.
type Timers struct {
	clock quartz.Clock

	mu      sync.Mutex
	pending map[*Handle]struct{}
}

// NewTimers returns an empty group scheduling on c.
func NewTimers(c quartz.Clock) *Timers {
	return &Timers{clock: c, pending: make(map[*Handle]struct{})}
}

// Clock returns the underlying clock.
func (t *Timers) Clock() quartz.Clock { return t.clock }

// After schedules fn to run once after d. Tags are passed through to quartz
// so tests can trap specific timers.
func (t *Timers) After(d time.Duration, fn func(), tags ...string) *Handle {
	h := &Handle{group: t}

	t.mu.Lock()
	t.pending[h] = struct{}{}
	t.mu.Unlock()

	// The handle must be fully built before the callback can run, so the
	// timer is created while h.mu is held.
	h.mu.Lock()
	h.timer = t.clock.AfterFunc(d, func() {
		if !h.claim() {
			return
		}
		t.forget(h)
		fn()
	}, tags...)
	h.mu.Unlock()

	return h
}

// StopAll cancels every pending callback in the group and returns how many
// were cancelled.
func (t *Timers) StopAll() int {
	t.mu.Lock()
	handles := make([]*Handle, 0, len(t.pending))
	for h := range t.pending {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	stopped := 0
	for _, h := range handles {
		if h.Stop() {
			stopped++
		}
	}
	return stopped
}

// Pending returns the number of callbacks that have neither fired nor been
// stopped.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Timers) forget(h *Handle) {
	t.mu.Lock()
	delete(t.pending, h)
	t.mu.Unlock()
}
