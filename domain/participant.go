package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleHuman, RoleAI:
		return Role(s), true
	default:
		return "", false
	}
}

// Identity is a 5-character code, unique within a room. It outlives
// connections: a participant rejoining with a known identity gets back
// its stored role and display name.
type Identity string

const identityLen = 5

const identityCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// MintIdentity draws a fresh random identity. Collision checking against
// already bound identities is the caller's job.
func MintIdentity() Identity {
	buf := make([]byte, identityLen)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = identityCharset[int(b)%len(identityCharset)]
	}
	return Identity(buf)
}

func (id Identity) Valid() bool {
	if len(id) != identityLen {
		return false
	}
	for _, r := range id {
		valid := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !valid {
			return false
		}
	}
	return true
}

// Participant is an identity bound to a role within one room.
// Role and PrimaryHuman never change once bound.
type Participant struct {
	Identity     Identity
	Room         RoomCode
	Role         Role
	PrimaryHuman bool
	DisplayName  string
	Online       bool
	LastSeen     time.Time
}

// DisplayNameFor derives the participant name shown to the room.
// The first human ever bound in a room is the primary human and keeps
// a distinct prefix for the lifetime of the room.
func DisplayNameFor(role Role, primary bool, id Identity) string {
	switch {
	case role == RoleHuman && primary:
		return fmt.Sprintf("MainHuman-%s", id)
	case role == RoleHuman:
		return fmt.Sprintf("Human-%s", id)
	default:
		return fmt.Sprintf("AI-%s", id)
	}
}
