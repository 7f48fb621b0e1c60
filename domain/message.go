package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status of a message. Transitions are monotonic:
// sent -> delivered -> read, never backwards.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return -1
	}
}

// TaskState is optional sender-supplied metadata describing what an AI
// participant is currently doing. Unknown values normalize to TaskNone.
type TaskState string

const (
	TaskNone    TaskState = ""
	TaskWorking TaskState = "working"
	TaskBlocked TaskState = "blocked"
	TaskDone    TaskState = "done"
)

func NormalizeTaskState(s string) TaskState {
	switch TaskState(s) {
	case TaskWorking, TaskBlocked, TaskDone:
		return TaskState(s)
	default:
		return TaskNone
	}
}

// Message is immutable once created, except for status and the
// blocked/released fields owned by the delay queue and pause gate.
type Message struct {
	ID         uuid.UUID
	Room       RoomCode
	Sender     Identity
	SenderRole Role
	SenderName string
	Body       string
	Status     Status

	// Emergency marks an interjection message: it bypasses the pause
	// gate and reaches everyone immediately.
	Emergency bool

	// HeldForAI is set on human messages withheld from AI recipients
	// while the room is paused.
	HeldForAI bool

	// DelayedUntil is the release deadline of an AI-authored message
	// waiting in the delay queue. Nil for human messages.
	DelayedUntil *time.Time

	// BlockedByInterject and ReleasedAt are set together when an
	// interjection preempts the delay queue.
	BlockedByInterject bool
	ReleasedAt         *time.Time

	TaskState       TaskState
	TaskDescription string

	CreatedAt time.Time
}

// Advance moves the status forward and reports whether it changed.
// Regressions and unknown states are ignored.
func (m *Message) Advance(next Status) bool {
	if next.rank() <= m.Status.rank() {
		return false
	}
	m.Status = next
	return true
}
