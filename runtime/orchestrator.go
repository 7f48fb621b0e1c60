package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"crosstalk/contract"
	"crosstalk/domain"
	"crosstalk/domain/event"
	"crosstalk/errors"
	"crosstalk/observability"
	"crosstalk/repositories"
)

// DefaultDelayWindow is how long an AI-authored message waits before
// reaching other AI participants, unless an interjection preempts it.
const DefaultDelayWindow = 10 * time.Second

// Censor sanitizes message bodies before they are saved or routed.
type Censor interface {
	Censor(original string) string
}

// Orchestrator owns the room directory and drives every routing
// decision. One instance per process; per-room state is isolated in
// lazily constructed RoomState objects.
type Orchestrator struct {
	mu  sync.Mutex
	log *slog.Logger

	registry     contract.IRegistry
	rooms        repositories.IRoomRepository
	participants repositories.IParticipantRepository
	messages     repositories.IMessageRepository

	states map[domain.RoomCode]*RoomState

	censor      Censor
	monitoring  *observability.MonitoringManager
	delayWindow time.Duration

	// telemetryEvents receives a copy of every outbound event, consumed
	// by the fanout worker for projections and stats. Best effort.
	telemetryEvents chan event.DomainEvent
}

func NewOrchestrator(
	log *slog.Logger,
	registry contract.IRegistry,
	rooms repositories.IRoomRepository,
	participants repositories.IParticipantRepository,
	messages repositories.IMessageRepository,
	delayWindow time.Duration,
	bufferSize int,
) *Orchestrator {
	if delayWindow <= 0 {
		delayWindow = DefaultDelayWindow
	}
	return &Orchestrator{
		log:             log,
		registry:        registry,
		rooms:           rooms,
		participants:    participants,
		messages:        messages,
		states:          make(map[domain.RoomCode]*RoomState),
		delayWindow:     delayWindow,
		telemetryEvents: make(chan event.DomainEvent, bufferSize),
	}
}

func (o *Orchestrator) WithCensor(c Censor) *Orchestrator {
	o.censor = c
	return o
}

func (o *Orchestrator) WithMonitoring(m *observability.MonitoringManager) *Orchestrator {
	o.monitoring = m
	return o
}

// TelemetryEvents exposes the observability copy of the event stream.
func (o *Orchestrator) TelemetryEvents() chan event.DomainEvent {
	return o.telemetryEvents
}

func (o *Orchestrator) state(code domain.RoomCode) (*RoomState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.states[code]
	return st, ok
}

func (o *Orchestrator) ensureState(code domain.RoomCode, paused bool) *RoomState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.states[code]; ok {
		return st
	}
	st := newRoomState(code, paused)
	o.states[code] = st
	if o.monitoring != nil {
		o.monitoring.SetActiveRooms(len(o.states))
	}
	return st
}

// Join subscribes a connection to a room, resolves a supplied identity
// if one is known, and unicasts the history snapshot for the joining
// role.
func (o *Orchestrator) Join(ctx context.Context, cmd domain.JoinCommand, sink contract.EventSink) error {
	room, err := o.rooms.GetOrCreate(cmd.Room)
	if err != nil {
		return fmt.Errorf("resolving room %s: %w", cmd.Room, err)
	}

	st := o.ensureState(room.Code, room.Paused)
	o.registry.Subscribe(cmd.Conn, room.Code, sink)

	role := cmd.Role
	if _, ok := domain.ParseRole(string(role)); !ok {
		role = domain.RoleHuman
	}

	st.mu.Lock()
	st.conns[cmd.Conn] = &ConnBinding{State: Unbound, ProvisionalRole: role}
	st.mu.Unlock()

	// A known identity rebinds immediately; unknown or malformed ones
	// fall back to deferred binding on first send.
	if cmd.Identity != "" && cmd.Identity.Valid() {
		if err := o.rebind(ctx, st, cmd.Conn, cmd.Identity); err != nil {
			return err
		}
	}

	if err := o.refreshRoster(st); err != nil {
		return err
	}
	return o.sendSnapshot(ctx, st, cmd.Conn, sink)
}

// rebind resolves a supplied identity against the store. The stored
// role, primary flag and display name win; whatever role the client
// asked for is ignored.
func (o *Orchestrator) rebind(ctx context.Context, st *RoomState, conn domain.ConnID, id domain.Identity) error {
	st.bindMu.Lock()
	p, found, err := o.participants.Get(st.code, id)
	if err != nil {
		st.bindMu.Unlock()
		return fmt.Errorf("resolving identity %s: %w", id, err)
	}
	if !found {
		st.bindMu.Unlock()
		o.log.Debug(fmt.Sprintf("Unknown identity %s supplied in room %s, deferring bind", id, st.code))
		return nil
	}
	p.Online = true
	p.LastSeen = time.Now().UTC()
	if err := o.participants.Upsert(p); err != nil {
		st.bindMu.Unlock()
		return fmt.Errorf("marking %s online: %w", id, err)
	}
	st.bindMu.Unlock()

	st.mu.Lock()
	b := st.conns[conn]
	if b == nil {
		st.mu.Unlock()
		return nil
	}
	b.State = Bound
	b.Identity = p.Identity
	b.Role = p.Role
	st.byIdentity[p.Identity] = conn
	st.participants[p.Identity] = p
	st.mu.Unlock()

	o.unicast(ctx, conn, event.RoleBound{
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
	return nil
}

// refreshRoster reconciles the in-memory participant cache with the
// store, picking up identities bound before this process started.
func (o *Orchestrator) refreshRoster(st *RoomState) error {
	list, err := o.participants.List(st.code)
	if err != nil {
		return fmt.Errorf("listing participants for %s: %w", st.code, err)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, p := range list {
		if cached, ok := st.participants[p.Identity]; ok {
			// keep the live online flag, the store may lag
			p.Online = cached.Online
		}
		st.participants[p.Identity] = p
	}
	return nil
}

// sendSnapshot unicasts the history visible to the joining role plus
// the current pause/interject/pending state.
func (o *Orchestrator) sendSnapshot(ctx context.Context, st *RoomState, conn domain.ConnID, sink contract.EventSink) error {
	page, _, err := o.messages.History(st.code, nil)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", st.code, err)
	}
	// History pages newest first; the snapshot reads oldest first.
	sort.Slice(page, func(i, j int) bool { return page[i].CreatedAt.Before(page[j].CreatedAt) })

	st.mu.Lock()
	b := st.conns[conn]
	role := domain.RoleHuman
	var viewer domain.Identity
	if b != nil {
		if b.State == Bound {
			role = b.Role
			viewer = b.Identity
		} else {
			role = b.ProvisionalRole
		}
	}
	snapshot := event.HistorySnapshot{
		Room:            st.code,
		Messages:        visibleMessages(page, role, viewer),
		Paused:          st.paused,
		InterjectActive: st.interjectActive,
		Pending:         st.delay.Snapshot(),
	}
	st.mu.Unlock()

	if err := sink.Consume(ctx, snapshot); err != nil {
		o.log.Warn("Failed to push history snapshot", "room", st.code, "error", err)
	}
	return nil
}

// visibleMessages filters history for a role: AI viewers never see
// messages still withheld by the pause gate, nor delayed AI traffic
// that has not been released to them yet.
func visibleMessages(messages []domain.Message, role domain.Role, viewer domain.Identity) []domain.Message {
	if role != domain.RoleAI {
		return messages
	}
	var out []domain.Message
	for _, m := range messages {
		if m.HeldForAI && m.ReleasedAt == nil {
			continue
		}
		if m.DelayedUntil != nil && m.ReleasedAt == nil && m.Sender != viewer {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SetRole records a provisional role for an unbound connection. A
// bound identity keeps its role forever; rebinding attempts are
// answered with a denial and change nothing.
func (o *Orchestrator) SetRole(ctx context.Context, cmd domain.SetRoleCommand) error {
	st, ok := o.state(cmd.Room)
	if !ok {
		return errors.ErrRoomNotFound
	}
	role, valid := domain.ParseRole(string(cmd.Role))
	if !valid {
		return errors.ErrInvalidRole
	}

	st.mu.Lock()
	b := st.conns[cmd.Conn]
	if b == nil {
		st.mu.Unlock()
		return errors.ErrRoomNotFound
	}
	if b.State != Unbound {
		st.mu.Unlock()
		o.unicast(ctx, cmd.Conn, event.Denied{Room: cmd.Room, Reason: "role is locked once bound"})
		return errors.ErrRoleLocked
	}
	b.ProvisionalRole = role
	st.mu.Unlock()
	return nil
}

// Leave drops a connection. The participant is marked offline, never
// deleted, and its pending delayed messages stay queued: messages
// outlive the sending connection.
func (o *Orchestrator) Leave(room domain.RoomCode, conn domain.ConnID) {
	o.registry.Unsubscribe(conn, room)
	st, ok := o.state(room)
	if !ok {
		return
	}

	st.mu.Lock()
	b := st.conns[conn]
	delete(st.conns, conn)
	var offline domain.Participant
	bound := b != nil && b.State == Bound
	if bound {
		if st.byIdentity[b.Identity] == conn {
			delete(st.byIdentity, b.Identity)
		}
		if p, ok := st.participants[b.Identity]; ok {
			p.Online = false
			p.LastSeen = time.Now().UTC()
			st.participants[b.Identity] = p
			offline = p
		}
	}
	st.mu.Unlock()

	if bound && offline.Identity != "" {
		if err := o.participants.Upsert(offline); err != nil {
			o.log.Warn("Failed to persist offline flag", "identity", offline.Identity, "error", err)
		}
		o.broadcast(context.Background(), room, event.PresenceUpdate{
			Room:        room,
			Identity:    offline.Identity,
			DisplayName: offline.DisplayName,
			Online:      false,
		})
	}
}

// unicast pushes one event to a single connection.
func (o *Orchestrator) unicast(ctx context.Context, conn domain.ConnID, e event.DomainEvent) {
	if sink, ok := o.registry.Sink(conn); ok {
		if err := sink.Consume(ctx, e); err != nil {
			o.log.Debug("Sink rejected event", "conn", conn, "error", err)
		}
	}
	o.publish(e)
}

// broadcast pushes one event to every sink of the room.
func (o *Orchestrator) broadcast(ctx context.Context, room domain.RoomCode, e event.DomainEvent) {
	for _, sink := range o.registry.SinksForRoom(room) {
		if err := sink.Consume(ctx, e); err != nil {
			o.log.Debug("Sink rejected event", "room", room, "error", err)
		}
	}
	o.publish(e)
}

// publish copies an event to the telemetry channel without blocking.
func (o *Orchestrator) publish(e event.DomainEvent) {
	select {
	case o.telemetryEvents <- e:
	default:
		o.log.Debug("Observability telemetry event lost")
	}
}
