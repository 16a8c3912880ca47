// Package scheduler drains the delayed-send heap, debounces the
// pending-check queue, and runs the periodic expiry sweep — the
// background tasks of the single-actor engine loop (spec §5).
package scheduler

import (
	"container/heap"
	"time"
)

// delayedItem is one scheduled network command.
type delayedItem struct {
	fireAt time.Time
	cmd    string
}

// delayedQueue is a container/heap.Interface min-heap ordered by fireAt.
type delayedQueue []delayedItem

func (q delayedQueue) Len() int            { return len(q) }
func (q delayedQueue) Less(i, j int) bool  { return q[i].fireAt.Before(q[j].fireAt) }
func (q delayedQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *delayedQueue) Push(x interface{}) { *q = append(*q, x.(delayedItem)) }
func (q *delayedQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// DelayedSend is the delayed-send heap: commands scheduled for a future
// send time, drained in increasing fire-time order.
type DelayedSend struct {
	q delayedQueue
}

// NewDelayedSend returns an empty heap.
func NewDelayedSend() *DelayedSend {
	d := &DelayedSend{}
	heap.Init(&d.q)
	return d
}

// Schedule adds cmd to fire at fireAt.
func (d *DelayedSend) Schedule(fireAt time.Time, cmd string) {
	heap.Push(&d.q, delayedItem{fireAt: fireAt, cmd: cmd})
}

// Drain pops and returns, in increasing fire-time order, every entry whose
// fireAt is at or before now.
func (d *DelayedSend) Drain(now time.Time) []string {
	var ready []string
	for d.q.Len() > 0 && !d.q[0].fireAt.After(now) {
		item := heap.Pop(&d.q).(delayedItem)
		ready = append(ready, item.cmd)
	}
	return ready
}

// Len reports how many entries remain queued.
func (d *DelayedSend) Len() int { return d.q.Len() }

// NextFireAt returns the earliest pending fire time and whether one exists.
func (d *DelayedSend) NextFireAt() (time.Time, bool) {
	if d.q.Len() == 0 {
		return time.Time{}, false
	}
	return d.q[0].fireAt, true
}
