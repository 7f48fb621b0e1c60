package runtime

import (
	"sync"

	"github.com/google/uuid"

	"crosstalk/domain"
)

// BindState tracks where a connection stands in identity resolution.
// Sends arriving while a bind is in flight are queued, not minted
// again: rapid first sends from one connection produce one identity.
type BindState int

const (
	Unbound BindState = iota
	BindingInFlight
	Bound
)

// ConnBinding is the per-connection slice of room state.
type ConnBinding struct {
	State BindState

	// ProvisionalRole applies until the first send binds the identity.
	ProvisionalRole domain.Role

	Identity domain.Identity
	Role     domain.Role

	// queued holds sends that arrived during BindingInFlight, replayed
	// in arrival order once the bind lands.
	queued []domain.SendMessageCommand
}

// RoomState owns every transient routing fact of one room. States are
// constructed lazily by the orchestrator and never shared across rooms.
//
// mu guards all fields. Store I/O never happens under mu: handlers
// snapshot what they need, release the lock for the roundtrip, then
// re-validate after reacquiring, since another handler for the same
// room may have run in the gap.
type RoomState struct {
	mu sync.Mutex

	code            domain.RoomCode
	paused          bool
	interjectActive bool

	// bindMu serializes identity minting per room so two concurrent
	// first sends cannot both observe "no primary human yet".
	bindMu sync.Mutex

	conns      map[domain.ConnID]*ConnBinding
	byIdentity map[domain.Identity]domain.ConnID

	// participants caches every identity ever bound in this room, kept
	// in sync with the store on bind/join.
	participants map[domain.Identity]domain.Participant

	// held lists messages withheld from AI recipients by the pause
	// gate, in original send order.
	held []uuid.UUID

	delay DelayQueue
}

func newRoomState(code domain.RoomCode, paused bool) *RoomState {
	return &RoomState{
		code:         code,
		paused:       paused,
		conns:        make(map[domain.ConnID]*ConnBinding),
		byIdentity:   make(map[domain.Identity]domain.ConnID),
		participants: make(map[domain.Identity]domain.Participant),
	}
}

// humanPresent reports whether at least one human identity is bound in
// the room. Participants are never deleted, so this survives
// disconnects.
func (st *RoomState) humanPresent() bool {
	for _, p := range st.participants {
		if p.Role == domain.RoleHuman {
			return true
		}
	}
	return false
}

// roster returns the cached participants as a slice, for routing.
func (st *RoomState) roster() []domain.Participant {
	out := make([]domain.Participant, 0, len(st.participants))
	for _, p := range st.participants {
		out = append(out, p)
	}
	return out
}

// connFor resolves a participant identity to its current connection,
// if the participant is online right now.
func (st *RoomState) connFor(id domain.Identity) (domain.ConnID, bool) {
	conn, ok := st.byIdentity[id]
	return conn, ok
}

// isPrimaryHuman reports whether the given connection is bound to the
// room's primary human. Only that participant controls pause and
// interjection.
func (st *RoomState) isPrimaryHuman(conn domain.ConnID) bool {
	b, ok := st.conns[conn]
	if !ok || b.State != Bound {
		return false
	}
	p, ok := st.participants[b.Identity]
	return ok && p.PrimaryHuman
}
