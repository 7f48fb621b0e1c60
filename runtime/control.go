package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crosstalk/domain"
	"crosstalk/domain/event"
	"crosstalk/errors"
)

// TogglePause flips the room pause flag. Primary-human only; anyone
// else gets an explicit denial and nothing changes. Lifting the pause
// releases every held message atomically, in original send order,
// through a single released-messages notice.
func (o *Orchestrator) TogglePause(ctx context.Context, cmd domain.TogglePauseCommand) error {
	st, ok := o.state(cmd.Room)
	if !ok {
		return errors.ErrRoomNotFound
	}

	st.mu.Lock()
	primary := st.isPrimaryHuman(cmd.Conn)
	st.mu.Unlock()
	if !primary {
		o.unicast(ctx, cmd.Conn, event.Denied{Room: cmd.Room, Reason: "only the primary human controls pause"})
		return errors.ErrNotPrimaryHuman
	}

	// Persist first: a store failure aborts before any routing state or
	// broadcast changes.
	if err := o.rooms.SetPaused(cmd.Room, cmd.Pause); err != nil {
		return fmt.Errorf("persisting pause flag for %s: %w", cmd.Room, err)
	}

	st.mu.Lock()
	st.paused = cmd.Pause
	var released []uuid.UUID
	if !cmd.Pause {
		released = st.held
		st.held = nil
	}
	o.broadcast(ctx, cmd.Room, event.PauseUpdated{Room: cmd.Room, Paused: cmd.Pause})
	if len(released) > 0 {
		o.broadcast(ctx, cmd.Room, event.ReleasedMessages{Room: cmd.Room, MessageIDs: released})
	}
	st.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range released {
		msg, err := o.messages.GetByID(cmd.Room, id)
		if err != nil {
			o.log.Error("Held message missing from store", "message", id, "error", err)
			continue
		}
		msg.ReleasedAt = &now
		if err := o.messages.Update(msg); err != nil {
			o.log.Error("Failed to mark held message released", "message", id, "error", err)
		}
	}
	if o.monitoring != nil && len(released) > 0 {
		o.monitoring.IncHeldReleased(len(released))
	}
	return nil
}

// StartInterject arms the interjection state and flushes the delay
// queue: every pending AI message reaches its AI recipients now, in
// FIFO creation order, before the human's own corrective message.
// Armed state only clears when that primary human actually sends an
// emergency-flagged message.
func (o *Orchestrator) StartInterject(ctx context.Context, cmd domain.StartInterjectCommand) error {
	st, ok := o.state(cmd.Room)
	if !ok {
		return errors.ErrRoomNotFound
	}

	st.mu.Lock()
	if !st.isPrimaryHuman(cmd.Conn) {
		st.mu.Unlock()
		o.unicast(ctx, cmd.Conn, event.Denied{Room: cmd.Room, Reason: "only the primary human may interject"})
		return errors.ErrNotPrimaryHuman
	}
	if st.interjectActive {
		st.mu.Unlock()
		return nil
	}
	st.interjectActive = true
	entries := st.delay.DrainAll()

	for _, entry := range entries {
		entry.Blocked = true
		note := event.NewMessage{Room: cmd.Room, Message: entry.Msg}
		for _, p := range st.roster() {
			if p.Role != domain.RoleAI || p.Identity == entry.Sender {
				continue
			}
			if c, online := st.connFor(p.Identity); online {
				o.unicast(ctx, c, note)
			}
		}
	}

	o.broadcast(ctx, cmd.Room, event.InterjectUpdated{Room: cmd.Room, Active: true})
	o.broadcast(ctx, cmd.Room, event.PendingDelayUpdate{Room: cmd.Room, Entries: st.delay.Snapshot()})
	o.broadcast(ctx, cmd.Room, event.Notice{
		Room: cmd.Room,
		Text: fmt.Sprintf("Interjection armed, %d pending messages flushed", len(entries)),
		At:   time.Now().UTC(),
	})
	st.mu.Unlock()

	// Blocked and released are set together on every flushed message.
	// Re-fetch each one first: the enqueue-time copy predates any read
	// acks and would roll the stored status back.
	now := time.Now().UTC()
	for _, entry := range entries {
		msg, err := o.messages.GetByID(cmd.Room, entry.MessageID)
		if err != nil {
			o.log.Error("Flushed message missing from store", "message", entry.MessageID, "error", err)
			msg = entry.Msg
		}
		msg.BlockedByInterject = true
		msg.ReleasedAt = &now
		msg.Advance(domain.StatusDelivered)
		if err := o.messages.Update(msg); err != nil {
			o.log.Error("Failed to persist interject flush", "message", msg.ID, "error", err)
		}
	}
	if o.monitoring != nil {
		o.monitoring.IncInterjectFlush(len(entries))
		o.monitoring.SetPendingDelays(0)
	}
	return nil
}

// MarkRead advances the given messages to read, batched. Unknown ids
// are skipped; regressions never happen. A message acked straight from
// sent passes through delivered so no transition is skipped.
func (o *Orchestrator) MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error {
	if _, ok := o.state(cmd.Room); !ok {
		return errors.ErrRoomNotFound
	}

	var acked []uuid.UUID
	for _, id := range cmd.MessageIDs {
		msg, err := o.messages.GetByID(cmd.Room, id)
		if err != nil {
			o.log.Debug("Read ack for unknown message", "message", id)
			continue
		}
		if msg.Status == domain.StatusSent {
			msg.Advance(domain.StatusDelivered)
			o.broadcast(ctx, cmd.Room, event.StatusUpdate{Room: cmd.Room, MessageID: id, Status: domain.StatusDelivered})
		}
		if !msg.Advance(domain.StatusRead) {
			continue
		}
		if err := o.messages.Update(msg); err != nil {
			o.log.Error("Failed to persist read status", "message", id, "error", err)
			continue
		}
		acked = append(acked, id)
	}

	if len(acked) > 0 {
		o.broadcast(ctx, cmd.Room, event.ReadBatch{Room: cmd.Room, MessageIDs: acked})
	}
	return nil
}
