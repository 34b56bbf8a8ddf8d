// Package debounce coalesces bursts of calls per key into a single delayed
// callback.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is used when New is given a non-positive delay.
const DefaultDelay = 1000 * time.Millisecond

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Debouncer runs at most one callback per key per settling period. Each call
// to Debounce with a pending key cancels the earlier timer, so only the most
// recently scheduled callback fires.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*entry
	gen     uint64
	stopped bool

	wg sync.WaitGroup // in-flight callbacks

	// OnPanic, if set, receives values recovered from callbacks.
	OnPanic func(key string, v any)
}

// New creates a Debouncer with the given delay.
func New(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*entry),
	}
}

// Key builds the composite key for an operation on a path.
func Key(op, path string) string { return op + ":" + path }

// Delay returns the settling period.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Debounce schedules fn to run after the delay, replacing any callback still
// pending for key. Calls after Stop are ignored.
func (d *Debouncer) Debounce(key string, fn func()) {
	d.replace(key, fn, false)
}

func (d *Debouncer) replace(key string, fn func(), onlyPending bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
	} else if onlyPending {
		return false
	}
	d.gen++
	gen := d.gen
	e = &entry{gen: gen}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen, fn) })
	d.pending[key] = e
	return true
}

// Extend reschedules fn under key only when a callback is already pending
// for it, restarting the delay. It reports whether it did.
func (d *Debouncer) Extend(key string, fn func()) bool {
	return d.replace(key, fn, true)
}

// fire runs fn only if no newer scheduling superseded it. A timer that had
// already expired when Stop was called on it still reaches fire, so the
// generation check is what guarantees a single callback per key.
func (d *Debouncer) fire(key string, gen uint64, fn func()) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if !ok || e.gen != gen || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	defer func() {
		if v := recover(); v != nil && d.OnPanic != nil {
			d.OnPanic(key, v)
		}
	}()
	fn()
}

// Cancel drops the pending callback for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels every pending callback and waits for running ones to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for k, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, k)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
