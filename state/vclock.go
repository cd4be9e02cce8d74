package state

import (
	"container/heap"
	"time"
)

// VirtualClock is a discrete-event clock. Time only advances when the owner
// steps it, which makes multi-node runs deterministic.
//
// VirtualClock is not safe for concurrent use.
type VirtualClock struct {
	now   time.Time
	seq   uint64
	queue timerQueue
}

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	return c.now
}

func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &virtualTimer{clock: c, f: f, index: -1}
	c.schedule(t, d)
	return t
}

func (c *VirtualClock) schedule(t *virtualTimer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.seq++
	t.at = c.now.Add(d)
	t.seq = c.seq
	heap.Push(&c.queue, t)
}

// Pending is the number of armed timers
func (c *VirtualClock) Pending() int {
	return len(c.queue)
}

// Next returns the instant of the earliest armed timer
func (c *VirtualClock) Next() (time.Time, bool) {
	if len(c.queue) == 0 {
		return time.Time{}, false
	}
	return c.queue[0].at, true
}

// Step advances to the earliest timer and fires it, it returns false if no timer is armed
func (c *VirtualClock) Step() bool {
	if len(c.queue) == 0 {
		return false
	}
	t := heap.Pop(&c.queue).(*virtualTimer)
	if t.at.After(c.now) {
		c.now = t.at
	}
	t.f()
	return true
}

// RunUntil fires every timer due at or before end, then sets the time to end
func (c *VirtualClock) RunUntil(end time.Time) {
	for len(c.queue) > 0 && !c.queue[0].at.After(end) {
		c.Step()
	}
	if end.After(c.now) {
		c.now = end
	}
}

func (c *VirtualClock) RunFor(d time.Duration) {
	c.RunUntil(c.now.Add(d))
}

type virtualTimer struct {
	clock *VirtualClock
	f     func()
	at    time.Time
	seq   uint64
	index int
}

func (t *virtualTimer) Stop() bool {
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.clock.queue, t.index)
	return true
}

func (t *virtualTimer) Reset(d time.Duration) bool {
	active := t.Stop()
	t.clock.schedule(t, d)
	return active
}

type timerQueue []*virtualTimer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*virtualTimer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
