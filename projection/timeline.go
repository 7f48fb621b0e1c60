// Package projection builds local read models from observed events.
// Handles ordering and per-room grouping. Does not emit events or
// interact with routing directly.
package projection

import (
	"context"
	"sync"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

// Timeline folds the telemetry event stream into a per-room message
// timeline, used by the debug dashboard for a recent-traffic view.
type Timeline struct {
	mu       sync.RWMutex
	limit    int
	messages map[domain.RoomCode][]domain.Message
}

func NewTimeline(limit int) *Timeline {
	return &Timeline{limit: limit, messages: make(map[domain.RoomCode][]domain.Message)}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.NewMessage)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	room := evt.RoomCode()
	line := t.messages[room]
	// delivery fan-out repeats the same message once per recipient;
	// keep a single copy
	if len(line) > 0 && line[len(line)-1].ID == evt.Message.ID {
		return nil
	}
	line = append(line, evt.Message)
	if t.limit > 0 && len(line) > t.limit {
		line = line[len(line)-t.limit:]
	}
	t.messages[room] = line
	return nil
}

// Messages returns a copy of the room's timeline, oldest first.
func (t *Timeline) Messages(room domain.RoomCode) []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	line := t.messages[room]
	out := make([]domain.Message, len(line))
	copy(out, line)
	return out
}

// Rooms lists every room seen so far.
func (t *Timeline) Rooms() []domain.RoomCode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.RoomCode
	for room := range t.messages {
		out = append(out, room)
	}
	return out
}
