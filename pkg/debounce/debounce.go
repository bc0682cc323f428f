// Package debounce collapses a burst of calls into one call after a quiet
// period.
//
// A Debouncer holds at most one pending call. Every Trigger cancels the
// previous pending call and re-arms the timer, so only the most recent
// function runs, and only once the caller has been quiet for the full delay.
//
//	d := debounce.New(400*time.Millisecond, debounce.WithDispatcher(session.Dispatch))
//	d.Trigger(func() { settle(text) })
//
// Timer callbacks run on the clock's goroutine. WithDispatcher hands them to
// an event loop instead, which is how a single-threaded owner keeps all state
// changes on its own goroutine.
package debounce

import (
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// Dispatcher runs fn, possibly later and on another goroutine.
type Dispatcher func(fn func())

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock sets the clock used to arm timers. Defaults to the real clock.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(d *Debouncer) {
		d.clock = c
	}
}

// WithDispatcher routes fired calls through dispatch instead of running them
// on the timer goroutine.
func WithDispatcher(dispatch Dispatcher) Option {
	return func(d *Debouncer) {
		d.dispatch = dispatch
	}
}

// Debouncer delays a call until Trigger has not been called for the delay.
// It is safe for concurrent use.
type Debouncer struct {
	delay    time.Duration
	clock    clock.WithDelayedExecution
	dispatch Dispatcher

	mu    sync.Mutex
	timer clock.Timer

	// seq numbers Triggers. active holds the sequence number of the pending
	// call, or 0 when nothing is pending. A fired timer runs only if it can
	// swap its own number out of active.
	seq    atomic.Uint64
	active atomic.Uint64

	fired     atomic.Uint64
	cancelled atomic.Uint64
}

// New creates a Debouncer with the given quiet period.
func New(delay time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{
		delay: delay,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger schedules fn to run after the quiet period, replacing any pending
// call.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.seq.Add(1)
	if d.active.Swap(id) != 0 {
		d.cancelled.Add(1)
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.fire(id, fn)
	})
}

// fire must not call back into the clock: fake clocks invoke it while
// holding their own lock.
func (d *Debouncer) fire(id uint64, fn func()) {
	if d.active.Load() != id {
		return
	}
	run := func() {
		if !d.active.CompareAndSwap(id, 0) {
			return
		}
		d.fired.Add(1)
		fn()
	}
	if d.dispatch != nil {
		d.dispatch(run)
		return
	}
	run()
}

// Cancel drops the pending call, if any. It reports whether a call was
// pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.active.Swap(0) == 0 {
		return false
	}
	d.cancelled.Add(1)
	return true
}

// Pending reports whether a call is scheduled and has not yet run or been
// cancelled.
func (d *Debouncer) Pending() bool {
	return d.active.Load() != 0
}

// Stats reports how many calls ran and how many were superseded or
// cancelled.
func (d *Debouncer) Stats() (fired, cancelled uint64) {
	return d.fired.Load(), d.cancelled.Load()
}
