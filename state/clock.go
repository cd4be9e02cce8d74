package state

import (
	"sync/atomic"
	"time"
)

// Timer is a cancellable scheduled callback
type Timer interface {
	// Stop prevents the callback from firing, it reports whether the timer was still armed
	Stop() bool
	// Reset re-arms the timer to fire after d, cancelling any pending firing
	Reset(d time.Duration) bool
}

// Clock supplies the current time and schedules callbacks. Callbacks always run on the
// goroutine that owns the router.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// DispatchClock is a wall clock whose callbacks are dispatched onto the main loop of Env
type DispatchClock struct {
	Env *Env
}

func (c DispatchClock) Now() time.Time {
	return time.Now()
}

func (c DispatchClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &dispatchTimer{env: c.Env, f: f}
	t.arm(d)
	return t
}

type dispatchTimer struct {
	env   *Env
	f     func()
	t     *time.Timer
	gen   atomic.Uint64
	armed atomic.Bool
}

func (t *dispatchTimer) arm(d time.Duration) {
	gen := t.gen.Add(1)
	t.armed.Store(true)
	t.t = time.AfterFunc(d, func() {
		t.env.Dispatch(func(s *State) error {
			// a Stop or Reset after the wall timer fired invalidates this firing
			if t.gen.Load() != gen {
				return nil
			}
			t.armed.Store(false)
			t.f()
			return nil
		})
	})
}

func (t *dispatchTimer) Stop() bool {
	t.gen.Add(1)
	if t.t != nil {
		t.t.Stop()
	}
	return t.armed.Swap(false)
}

func (t *dispatchTimer) Reset(d time.Duration) bool {
	active := t.Stop()
	t.arm(d)
	return active
}
