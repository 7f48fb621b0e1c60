// Package domain contains core concepts of the routing system.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

// RoomCode identifies an isolated chat channel shared between
// human and AI participants.
type RoomCode string

// Room is the persistent part of a room. Transient routing state
// (pending delays, interject flag, connections) lives in the runtime.
type Room struct {
	Code      RoomCode
	Paused    bool
	CreatedAt time.Time
}
