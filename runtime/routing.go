package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crosstalk/domain"
	"crosstalk/domain/event"
	"crosstalk/errors"
)

const maxMintAttempts = 16

// Send routes one inbound message. The first send of an unbound
// connection mints and binds its identity; sends racing that bind are
// queued and replayed in arrival order once it lands.
func (o *Orchestrator) Send(ctx context.Context, cmd domain.SendMessageCommand) error {
	st, ok := o.state(cmd.Room)
	if !ok {
		return errors.ErrRoomNotFound
	}

	st.mu.Lock()
	b, ok := st.conns[cmd.Conn]
	if !ok {
		st.mu.Unlock()
		return fmt.Errorf("connection %s never joined room %s: %w", cmd.Conn, cmd.Room, errors.ErrRoomNotFound)
	}

	switch b.State {
	case Bound:
		st.mu.Unlock()
		return o.routeSend(ctx, st, cmd.Conn, cmd)

	case BindingInFlight:
		b.queued = append(b.queued, cmd)
		st.mu.Unlock()
		return nil

	default: // Unbound
		b.State = BindingInFlight
		role := b.ProvisionalRole
		st.mu.Unlock()

		p, err := o.bindIdentity(st, role)

		st.mu.Lock()
		if err != nil {
			b.State = Unbound
			dropped := len(b.queued)
			b.queued = nil
			st.mu.Unlock()
			if dropped > 0 {
				o.log.Warn(fmt.Sprintf("Dropping %d queued sends after failed bind", dropped), "room", st.code)
			}
			return err
		}
		if _, connected := st.conns[cmd.Conn]; !connected {
			// The connection left while its bind was in flight. The
			// participant is persisted for a later rejoin, but a dead
			// conn never enters the routing maps.
			st.mu.Unlock()
			p.Online = false
			p.LastSeen = time.Now().UTC()
			if err := o.participants.Upsert(p); err != nil {
				o.log.Warn("Failed to persist offline flag", "identity", p.Identity, "error", err)
			}
			return nil
		}
		b.State = Bound
		b.Identity = p.Identity
		b.Role = p.Role
		st.byIdentity[p.Identity] = cmd.Conn
		st.participants[p.Identity] = p
		queued := b.queued
		b.queued = nil
		st.mu.Unlock()

		o.unicast(ctx, cmd.Conn, event.RoleBound{
			Room:         st.code,
			Identity:     p.Identity,
			Role:         p.Role,
			PrimaryHuman: p.PrimaryHuman,
			DisplayName:  p.DisplayName,
		})
		o.broadcast(ctx, st.code, event.PresenceUpdate{
			Room:        st.code,
			Identity:    p.Identity,
			DisplayName: p.DisplayName,
			Online:      true,
		})

		if err := o.routeSend(ctx, st, cmd.Conn, cmd); err != nil {
			return err
		}
		for _, later := range queued {
			if err := o.routeSend(ctx, st, cmd.Conn, later); err != nil {
				o.log.Warn("Queued send failed after bind", "room", st.code, "error", err)
			}
		}
		return nil
	}
}

// bindIdentity mints a fresh collision-checked identity and persists
// the new participant. bindMu serializes binds per room, so after the
// store roundtrips we still re-check the cached roster before deciding
// the primary-human flag: a concurrent handler may have bound one in
// the gap.
func (o *Orchestrator) bindIdentity(st *RoomState, role domain.Role) (domain.Participant, error) {
	st.bindMu.Lock()
	defer st.bindMu.Unlock()

	var ident domain.Identity
	for i := 0; i < maxMintAttempts; i++ {
		candidate := domain.MintIdentity()
		exists, err := o.participants.Exists(st.code, candidate)
		if err != nil {
			return domain.Participant{}, fmt.Errorf("checking identity collision: %w", err)
		}
		if !exists {
			ident = candidate
			break
		}
	}
	if ident == "" {
		return domain.Participant{}, fmt.Errorf("no free identity after %d attempts in room %s", maxMintAttempts, st.code)
	}

	primary := false
	if role == domain.RoleHuman {
		has, err := o.participants.HasPrimaryHuman(st.code)
		if err != nil {
			return domain.Participant{}, fmt.Errorf("checking primary human: %w", err)
		}
		if !has {
			st.mu.Lock()
			for _, p := range st.participants {
				if p.PrimaryHuman {
					has = true
					break
				}
			}
			st.mu.Unlock()
		}
		primary = !has
	}

	p := domain.Participant{
		Identity:     ident,
		Room:         st.code,
		Role:         role,
		PrimaryHuman: primary,
		DisplayName:  domain.DisplayNameFor(role, primary, ident),
		Online:       true,
		LastSeen:     time.Now().UTC(),
	}
	if err := o.participants.Upsert(p); err != nil {
		return domain.Participant{}, fmt.Errorf("persisting participant %s: %w", ident, err)
	}
	return p, nil
}

// routeSend normalizes, saves and delivers one message from a bound
// connection.
func (o *Orchestrator) routeSend(ctx context.Context, st *RoomState, conn domain.ConnID, cmd domain.SendMessageCommand) error {
	body := strings.TrimSpace(cmd.Body)
	if body == "" {
		return errors.ErrEmptyBody
	}
	if o.censor != nil {
		body = o.censor.Censor(body)
	}

	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	st.mu.Lock()
	b := st.conns[conn]
	if b == nil || b.State != Bound {
		st.mu.Unlock()
		return fmt.Errorf("connection %s lost its binding in room %s", conn, st.code)
	}
	sender, ok := st.participants[b.Identity]
	if !ok {
		st.mu.Unlock()
		return fmt.Errorf("identity %s missing from roster of %s", b.Identity, st.code)
	}

	msg := domain.Message{
		ID:              uuid.New(),
		Room:            st.code,
		Sender:          sender.Identity,
		SenderRole:      sender.Role,
		SenderName:      sender.DisplayName,
		Body:            body,
		Status:          domain.StatusSent,
		Emergency:       cmd.Emergency && sender.Role == domain.RoleHuman,
		TaskState:       domain.NormalizeTaskState(cmd.TaskState),
		TaskDescription: strings.TrimSpace(cmd.TaskDescription),
		CreatedAt:       at,
	}
	msg.HeldForAI = domain.HeldForAI(st.paused, st.humanPresent(), sender.Role, msg.Emergency)

	// Reserve the delay deadline before saving so the stored record
	// carries it from the start.
	prospective := domain.Route(msg, st.roster())
	if msg.SenderRole == domain.RoleAI && len(prospective.DelayedAI) > 0 {
		releaseAt := at.Add(o.delayWindow)
		msg.DelayedUntil = &releaseAt
	}
	st.mu.Unlock()

	// Store failure aborts here: nothing was broadcast, no routing
	// state was touched, a client retry is safe.
	if err := o.messages.Append(msg); err != nil {
		return fmt.Errorf("saving message in %s: %w", st.code, err)
	}

	st.mu.Lock()
	// Re-validate after the store roundtrip: the pause may have lifted
	// while we were writing, and a message still marked held would
	// never be released.
	dirty := false
	if msg.HeldForAI && !st.paused {
		msg.HeldForAI = false
		dirty = true
	}

	recipients := domain.Route(msg, st.roster())
	interjection := msg.Emergency
	armedCleared := interjection && st.interjectActive && sender.PrimaryHuman
	if armedCleared {
		st.interjectActive = false
	}
	if msg.HeldForAI {
		st.held = append(st.held, msg.ID)
		if o.monitoring != nil {
			o.monitoring.IncHeld()
		}
	}

	enqueued := msg.SenderRole == domain.RoleAI && len(recipients.DelayedAI) > 0 && msg.DelayedUntil != nil
	// An AI message arriving while an interjection is armed is in flight
	// during the intervention: it skips the delay queue and flushes to
	// its AI recipients right away, marked blocked and released like the
	// entries drained when the interjection armed.
	flushedByInterject := enqueued && st.interjectActive
	if flushedByInterject {
		enqueued = false
		now := time.Now().UTC()
		msg.BlockedByInterject = true
		msg.ReleasedAt = &now
		dirty = true
	}
	if enqueued {
		st.delay.Add(&PendingEntry{
			MessageID:  msg.ID,
			Sender:     sender.Identity,
			SenderConn: conn,
			ReleaseAt:  *msg.DelayedUntil,
			Msg:        msg,
		}, o.delayWindow, func(id uuid.UUID) { o.onDelayExpiry(st.code, id) })
		if o.monitoring != nil {
			o.monitoring.IncDelayed()
			o.monitoring.SetPendingDelays(st.delay.Len())
		}
	}

	// Immediate delivery, sender echo first. Events are emitted under
	// the room lock so send order within a room is preserved.
	note := event.NewMessage{Room: st.code, Message: msg, Interjection: interjection}
	o.unicast(ctx, conn, note)
	delivered := 0
	for _, p := range recipients.Immediate {
		if c, online := st.connFor(p.Identity); online {
			o.unicast(ctx, c, note)
			delivered++
		}
	}
	if flushedByInterject {
		for _, p := range recipients.DelayedAI {
			if c, online := st.connFor(p.Identity); online {
				o.unicast(ctx, c, note)
				delivered++
			}
		}
	}

	if enqueued {
		o.broadcast(ctx, st.code, event.PendingDelayUpdate{Room: st.code, Entries: st.delay.Snapshot()})
	}
	if armedCleared {
		o.broadcast(ctx, st.code, event.InterjectUpdated{Room: st.code, Active: false})
		o.broadcast(ctx, st.code, event.Notice{
			Room: st.code,
			Text: fmt.Sprintf("%s interjected", sender.DisplayName),
			At:   time.Now().UTC(),
		})
	}
	st.mu.Unlock()

	if o.monitoring != nil {
		o.monitoring.IncRouted()
		if flushedByInterject {
			o.monitoring.IncInterjectFlush(1)
		}
	}

	// Delivered advances once, iff at least one recipient connection
	// existed at send time.
	if delivered > 0 && msg.Advance(domain.StatusDelivered) {
		dirty = true
	}
	if dirty {
		if err := o.messages.Update(msg); err != nil {
			o.log.Error("Failed to persist message flags", "message", msg.ID, "error", err)
			return nil
		}
	}
	if msg.Status == domain.StatusDelivered {
		o.broadcast(ctx, st.code, event.StatusUpdate{Room: st.code, MessageID: msg.ID, Status: domain.StatusDelivered})
	}
	return nil
}

// onDelayExpiry runs on the timer goroutine when a pending entry's
// window elapses. The entry may already be gone (interjection flush won
// the race): that is a no-op, never an error.
func (o *Orchestrator) onDelayExpiry(room domain.RoomCode, id uuid.UUID) {
	ctx := context.Background()
	st, ok := o.state(room)
	if !ok {
		return
	}

	st.mu.Lock()
	entry, ok := st.delay.Remove(id)
	if !ok {
		// interjection flush or another expiry won the race
		st.mu.Unlock()
		return
	}

	delivered := 0
	note := event.NewMessage{Room: room, Message: entry.Msg}
	for _, p := range st.roster() {
		if p.Role != domain.RoleAI || p.Identity == entry.Sender {
			continue
		}
		if c, online := st.connFor(p.Identity); online {
			o.unicast(ctx, c, note)
			delivered++
		}
	}
	snapshot := st.delay.Snapshot()
	pendingLeft := st.delay.Len()
	st.mu.Unlock()

	// Persist from the stored record, not the copy captured at enqueue:
	// a read ack may have advanced the status during the window and must
	// never be rolled back.
	now := time.Now().UTC()
	msg, err := o.messages.GetByID(room, id)
	if err != nil {
		o.log.Error("Released message missing from store", "message", id, "error", err)
		msg = entry.Msg
	}
	msg.ReleasedAt = &now
	advanced := delivered > 0 && msg.Advance(domain.StatusDelivered)
	if err := o.messages.Update(msg); err != nil {
		o.log.Error("Failed to mark delayed message released", "message", id, "error", err)
	}

	o.broadcast(ctx, room, event.PendingDelayUpdate{Room: room, Entries: snapshot})
	o.broadcast(ctx, room, event.Notice{
		Room: room,
		Text: fmt.Sprintf("%s's message was released to AI participants", entry.Msg.SenderName),
		At:   now,
	})
	if advanced {
		o.broadcast(ctx, room, event.StatusUpdate{Room: room, MessageID: id, Status: domain.StatusDelivered})
	}
	if o.monitoring != nil {
		o.monitoring.IncDelayReleased()
		o.monitoring.SetPendingDelays(pendingLeft)
	}
}
