package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVirtualClockOrdering(t *testing.T) {
	c := NewVirtualClock(epoch)
	order := make([]string, 0)
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "c") })

	c.RunFor(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, order)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), c.Now())

	c.RunFor(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, c.Pending())
}

func TestVirtualClockStopReset(t *testing.T) {
	c := NewVirtualClock(epoch)
	fired := 0
	tm := c.AfterFunc(time.Second, func() { fired++ })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.RunFor(2 * time.Second)
	assert.Equal(t, 0, fired)

	assert.False(t, tm.Reset(time.Second))
	next, ok := c.Next()
	assert.True(t, ok)
	assert.Equal(t, epoch.Add(3*time.Second), next)
	c.RunFor(time.Second)
	assert.Equal(t, 1, fired)
}

func TestVirtualClockRearmFromCallback(t *testing.T) {
	c := NewVirtualClock(epoch)
	count := 0
	var tm Timer
	tm = c.AfterFunc(time.Second, func() {
		count++
		tm.Reset(time.Second)
	})
	c.RunFor(5 * time.Second)
	assert.Equal(t, 5, count)
	assert.Equal(t, 1, c.Pending())
}
