package scheduler

import (
	"time"

	"maskwatch/internal/observer"
)

// DebounceReady walks pending from the front and pops every entry whose
// EnqueuedAt is at least delay old, per spec §5's check-debounce task.
// Because the queue is FIFO by enqueue time, once the front entry is too
// young every entry behind it is too, so this stops at the first miss
// rather than scanning the whole queue. Entries whose snapshot is no
// longer connected are dropped silently (disconnect raced the debounce).
func DebounceReady(pending []observer.PendingCheck, now time.Time, delay time.Duration) (ready []observer.PendingCheck, remaining []observer.PendingCheck) {
	i := 0
	for i < len(pending) {
		age := now.Sub(time.Unix(pending[i].EnqueuedAt, 0))
		if age < delay {
			break
		}
		if pending[i].User.Connected {
			ready = append(ready, pending[i])
		}
		i++
	}
	remaining = pending[i:]
	return ready, remaining
}
