package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatchClockFires(t *testing.T) {
	env, ch, cancel := newTestEnv(t)
	clk := DispatchClock{Env: env}

	fired := make(chan struct{}, 1)
	clk.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })

	go runLoop(env, ch)
	defer cancel(nil)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestDispatchClockStop(t *testing.T) {
	env, ch, _ := newTestEnv(t)
	clk := DispatchClock{Env: env}

	fired := false
	timer := clk.AfterFunc(5*time.Millisecond, func() { fired = true })

	// the wall timer fires and queues the callback, Stop must still win
	f := <-ch
	assert.True(t, timer.Stop())
	_ = f(&State{Env: env})
	assert.False(t, fired)
	assert.False(t, timer.Stop())
}

func TestDispatchClockReset(t *testing.T) {
	env, ch, _ := newTestEnv(t)
	clk := DispatchClock{Env: env}

	count := 0
	timer := clk.AfterFunc(5*time.Millisecond, func() { count++ })
	stale := <-ch
	timer.Reset(5 * time.Millisecond)
	_ = stale(&State{Env: env})
	assert.Equal(t, 0, count)

	fresh := <-ch
	_ = fresh(&State{Env: env})
	assert.Equal(t, 1, count)
}
