package runtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

// PendingEntry exists only between enqueue and release or preemption of
// one AI-authored message.
type PendingEntry struct {
	MessageID  uuid.UUID
	Sender     domain.Identity
	SenderConn domain.ConnID
	ReleaseAt  time.Time
	Blocked    bool

	// Msg keeps the full message in memory for the short hold window so
	// release and flush never need a store read to deliver.
	Msg domain.Message

	timer *time.Timer
}

// DelayQueue is the per-room ordered set of AI-authored messages
// awaiting release. Insertion order is send order; flushes preserve it.
//
// The queue does not lock itself: it is owned by a RoomState and only
// touched under that room's mutex. Timers are registered by message id
// so cancellation (preemption) and firing are both idempotent: whoever
// removes the entry first wins, the other path finds nothing.
type DelayQueue struct {
	entries []*PendingEntry
}

// Add appends an entry and arms its timer. The fire callback runs on
// the timer goroutine and must take the room lock itself.
func (q *DelayQueue) Add(entry *PendingEntry, window time.Duration, fire func(uuid.UUID)) {
	id := entry.MessageID
	entry.timer = time.AfterFunc(window, func() { fire(id) })
	q.entries = append(q.entries, entry)
}

// Remove takes an entry out of the queue and stops its timer. It
// returns false when the entry is already gone, which makes the expiry
// callback and preemption safe to race against each other.
func (q *DelayQueue) Remove(id uuid.UUID) (*PendingEntry, bool) {
	for i, entry := range q.entries {
		if entry.MessageID == id {
			entry.timer.Stop()
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return entry, true
		}
	}
	return nil, false
}

// DrainAll empties the queue in FIFO creation order, stopping every
// timer. Used by the interjection flush.
func (q *DelayQueue) DrainAll() []*PendingEntry {
	drained := q.entries
	for _, entry := range drained {
		entry.timer.Stop()
	}
	q.entries = nil
	return drained
}

// Snapshot renders the pending list as broadcast to clients.
func (q *DelayQueue) Snapshot() []event.PendingDelay {
	return lo.Map(q.entries, func(entry *PendingEntry, _ int) event.PendingDelay {
		return event.PendingDelay{MessageID: entry.MessageID, ReleaseAt: entry.ReleaseAt}
	})
}

func (q *DelayQueue) Len() int { return len(q.entries) }
