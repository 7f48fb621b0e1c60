package domain

import (
	"time"

	"github.com/google/uuid"
)

// Command is an inbound intent targeting one room.
type Command interface {
	RoomCode() RoomCode
}

// ConnID references the transient connection a command arrived on.
type ConnID string

type JoinCommand struct {
	Room     RoomCode
	Conn     ConnID
	Role     Role
	Identity Identity // optional, empty when the client has none yet
}

func (c JoinCommand) RoomCode() RoomCode { return c.Room }

type SetRoleCommand struct {
	Room RoomCode
	Conn ConnID
	Role Role
}

func (c SetRoleCommand) RoomCode() RoomCode { return c.Room }

type SendMessageCommand struct {
	Room            RoomCode
	Conn            ConnID
	Body            string
	Emergency       bool
	TaskState       string
	TaskDescription string
	At              time.Time
}

func (c SendMessageCommand) RoomCode() RoomCode { return c.Room }

type TogglePauseCommand struct {
	Room  RoomCode
	Conn  ConnID
	Pause bool
}

func (c TogglePauseCommand) RoomCode() RoomCode { return c.Room }

type StartInterjectCommand struct {
	Room RoomCode
	Conn ConnID
}

func (c StartInterjectCommand) RoomCode() RoomCode { return c.Room }

type MarkReadCommand struct {
	Room       RoomCode
	Conn       ConnID
	MessageIDs []uuid.UUID
}

func (c MarkReadCommand) RoomCode() RoomCode { return c.Room }
