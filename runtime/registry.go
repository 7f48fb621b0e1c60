// Package runtime owns the per-room routing state machines: pause gate,
// delivery routing, delay queue, interjection handling and presence.
// It orchestrates the system without containing storage or UI logic.
package runtime

import (
	"sync"

	"crosstalk/contract"
	"crosstalk/domain"
)

type Set map[domain.ConnID]struct{}

// Registry is the realtime-channel side of the system: it maps live
// connections to their event sinks and rooms to their member
// connections. Identity binding is not its concern.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnID]contract.EventSink
	roomMembers map[domain.RoomCode]Set
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnID]contract.EventSink),
		roomMembers: make(map[domain.RoomCode]Set),
	}
}

// Subscribe registers a connection's sink and assigns it to a room.
// If the room does not yet exist in the registry, it is initialized on
// the fly.
func (r *Registry) Subscribe(conn domain.ConnID, room domain.RoomCode, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[conn] = sink

	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	r.roomMembers[room][conn] = struct{}{}
}

// Unsubscribe removes a connection from the registry and its room.
// Empty member sets are dropped so dead rooms don't accumulate.
func (r *Registry) Unsubscribe(conn domain.ConnID, room domain.RoomCode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, conn)

	if members, ok := r.roomMembers[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}

// Sink resolves one connection to its sink, for unicast delivery.
func (r *Registry) Sink(conn domain.ConnID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[conn]
	return sink, ok
}

// SinksForRoom retrieves all active sinks of a room, for broadcast.
// Returns nil if the room doesn't exist or has no members.
func (r *Registry) SinksForRoom(room domain.RoomCode) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for conn := range members {
		if sink, exists := r.sessions[conn]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}
