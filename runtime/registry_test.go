package runtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

type Sink struct {
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestRegistry_Subscribe_One_Room_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := domain.ConnID(uuid.NewString())
	room := domain.RoomCode("LOBBY")
	sink := Sink{}

	// Given no connection is registered
	// And no room exists
	req.Empty(registry.sessions)
	req.Empty(registry.roomMembers)

	// When a connection subscribes a room
	registry.Subscribe(conn, room, sink)

	// Then
	req.Len(registry.sessions, 1)
	req.Equal(sink, registry.sessions[conn])

	req.Len(registry.roomMembers, 1)
	req.Contains(registry.roomMembers[room], conn)

	req.Len(registry.SinksForRoom(room), 1)
	req.Contains(registry.SinksForRoom(room), sink)
}

func TestRegistry_Subscribe_One_Room_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn1 := domain.ConnID(uuid.NewString())
	conn2 := domain.ConnID(uuid.NewString())
	room := domain.RoomCode("LOBBY")

	// When two connections subscribe the same room
	registry.Subscribe(conn1, room, Sink{})
	registry.Subscribe(conn2, room, Sink{})

	// Then
	req.Len(registry.sessions, 2)
	req.Len(registry.roomMembers[room], 2)
	req.Len(registry.SinksForRoom(room), 2)
}

func TestRegistry_Unsubscribe_Drops_Empty_Rooms(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := domain.ConnID(uuid.NewString())
	room := domain.RoomCode("LOBBY")

	registry.Subscribe(conn, room, Sink{})

	// When the last member unsubscribes
	registry.Unsubscribe(conn, room)

	// Then the session and the room entry are both gone
	req.Empty(registry.sessions)
	req.Empty(registry.roomMembers)
	req.Nil(registry.SinksForRoom(room))
}

func TestRegistry_Unsubscribe_Keeps_Remaining_Members(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn1 := domain.ConnID(uuid.NewString())
	conn2 := domain.ConnID(uuid.NewString())
	room := domain.RoomCode("LOBBY")

	registry.Subscribe(conn1, room, Sink{})
	registry.Subscribe(conn2, room, Sink{})

	// When one of two members unsubscribes
	registry.Unsubscribe(conn1, room)

	// Then the other keeps its session and the room survives
	req.Len(registry.sessions, 1)
	req.Contains(registry.roomMembers[room], conn2)
	req.Len(registry.SinksForRoom(room), 1)
}

func TestRegistry_Sink_Resolution(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := domain.ConnID(uuid.NewString())

	// Given an unknown connection
	_, ok := registry.Sink(conn)
	req.False(ok)

	// When it subscribes
	registry.Subscribe(conn, "LOBBY", Sink{})

	// Then its sink resolves
	sink, ok := registry.Sink(conn)
	req.True(ok)
	req.Equal(Sink{}, sink)
}
