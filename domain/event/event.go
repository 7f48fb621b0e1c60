// Package event defines the outbound events pushed to connected
// clients and observability sinks.
package event

import (
	"time"

	"github.com/google/uuid"

	"crosstalk/domain"
)

type DomainEvent interface {
	RoomCode() domain.RoomCode
}

// NewMessage delivers one message to a recipient. Interjection is set
// when the message is a primary-human override, so clients can render
// it distinctly.
type NewMessage struct {
	Room         domain.RoomCode
	Message      domain.Message
	Interjection bool
}

func (e NewMessage) RoomCode() domain.RoomCode { return e.Room }

type StatusUpdate struct {
	Room      domain.RoomCode
	MessageID uuid.UUID
	Status    domain.Status
}

func (e StatusUpdate) RoomCode() domain.RoomCode { return e.Room }

// ReadBatch acknowledges a batch of messages as read, room-wide.
type ReadBatch struct {
	Room       domain.RoomCode
	MessageIDs []uuid.UUID
}

func (e ReadBatch) RoomCode() domain.RoomCode { return e.Room }

type PauseUpdated struct {
	Room   domain.RoomCode
	Paused bool
}

func (e PauseUpdated) RoomCode() domain.RoomCode { return e.Room }

type InterjectUpdated struct {
	Room   domain.RoomCode
	Active bool
}

func (e InterjectUpdated) RoomCode() domain.RoomCode { return e.Room }

// PendingDelay is one delay-queue entry as seen by clients.
type PendingDelay struct {
	MessageID uuid.UUID
	ReleaseAt time.Time
}

// PendingDelayUpdate broadcasts the full ordered pending list whenever
// it changes.
type PendingDelayUpdate struct {
	Room    domain.RoomCode
	Entries []PendingDelay
}

func (e PendingDelayUpdate) RoomCode() domain.RoomCode { return e.Room }

// ReleasedMessages lists messages freed from the pause hold, in their
// original send order.
type ReleasedMessages struct {
	Room       domain.RoomCode
	MessageIDs []uuid.UUID
}

func (e ReleasedMessages) RoomCode() domain.RoomCode { return e.Room }

// RoleBound tells a connection which identity, role and display name it
// now owns.
type RoleBound struct {
	Room         domain.RoomCode
	Identity     domain.Identity
	Role         domain.Role
	PrimaryHuman bool
	DisplayName  string
}

func (e RoleBound) RoomCode() domain.RoomCode { return e.Room }

type PresenceUpdate struct {
	Room        domain.RoomCode
	Identity    domain.Identity
	DisplayName string
	Online      bool
}

func (e PresenceUpdate) RoomCode() domain.RoomCode { return e.Room }

// Notice is an informational room-wide line for delay and interject
// transitions.
type Notice struct {
	Room domain.RoomCode
	Text string
	At   time.Time
}

func (e Notice) RoomCode() domain.RoomCode { return e.Room }

// HistorySnapshot is unicast to a joining connection: the messages its
// role may see plus the current routing state of the room.
type HistorySnapshot struct {
	Room            domain.RoomCode
	Messages        []domain.Message
	Paused          bool
	InterjectActive bool
	Pending         []PendingDelay
}

func (e HistorySnapshot) RoomCode() domain.RoomCode { return e.Room }

// Denied answers a request that was ignored for permission reasons.
type Denied struct {
	Room   domain.RoomCode
	Reason string
}

func (e Denied) RoomCode() domain.RoomCode { return e.Room }
