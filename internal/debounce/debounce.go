// Package debounce collapses bursts of events into one call after a quiet
// period.
package debounce

import (
	"sync"
	"time"

	"github.com/samsaffron/tonenotes/internal/clock"
)

// State is the phase of a Debouncer.
type State int

const (
	// Idle: nothing scheduled.
	Idle State = iota
	// Pending: a payload is waiting for the quiet period to elapse.
	Pending
	// Settled: the callback is running with the last payload.
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// Debouncer delivers the last payload of a burst to its callback once no
// new payload has arrived for the configured delay. It owns a single timer;
// each Trigger replaces both the timer and the payload.
//
// All methods are safe for concurrent use. The callback runs without the
// debouncer's lock held, on the timer's goroutine or on the caller of Flush.
type Debouncer[T any] struct {
	mu      sync.Mutex
	clock   clock.Clock
	delay   time.Duration
	settle  func(T)
	state   State
	payload T
	timer   clock.Timer
	seq     uint64 // invalidates timers that were replaced or cancelled
}

// New creates a debouncer. A nil clock uses the wall clock.
func New[T any](c clock.Clock, delay time.Duration, settle func(T)) *Debouncer[T] {
	if c == nil {
		c = clock.Real()
	}
	return &Debouncer[T]{clock: c, delay: delay, settle: settle}
}

// Trigger records p as the latest payload and restarts the quiet period.
func (d *Debouncer[T]) Trigger(p T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.payload = p
	d.state = Pending
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if d.state != Pending || d.seq != seq {
		d.mu.Unlock()
		return
	}
	p := d.take()
	d.mu.Unlock()

	d.run(p, seq)
}

// take moves Pending to Settled and returns the payload. Callers hold mu.
func (d *Debouncer[T]) take() T {
	p := d.payload
	var zero T
	d.payload = zero
	d.timer = nil
	d.state = Settled
	return p
}

func (d *Debouncer[T]) run(p T, seq uint64) {
	d.settle(p)

	d.mu.Lock()
	if d.state == Settled && d.seq == seq {
		d.state = Idle
	}
	d.mu.Unlock()
}

// Flush settles a pending payload immediately. It reports whether there was
// one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.state != Pending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	p := d.take()
	d.mu.Unlock()

	d.run(p, seq)
	return true
}

// Cancel drops a pending payload. It reports whether there was one.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	wasPending := d.state == Pending
	if wasPending {
		var zero T
		d.payload = zero
		d.state = Idle
	}
	return wasPending
}

// State returns the current phase.
func (d *Debouncer[T]) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
