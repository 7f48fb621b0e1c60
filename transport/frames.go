// Package transport exposes the routing engine over websocket: JSON
// event frames in both directions, one connection per participant.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

var validate = validator.New()

// ClientFrame is one inbound message from a connected client. Type
// selects which of the optional payload fields are meaningful.
type ClientFrame struct {
	Type string `json:"type" validate:"required,oneof=join set_role toggle_pause start_interject send_message mark_read"`

	// join / set_role
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=human ai"`
	Identity string `json:"identity,omitempty" validate:"omitempty,alphanum,len=5"`

	// toggle_pause
	Pause bool `json:"pause,omitempty"`

	// send_message
	Body            string `json:"body,omitempty" validate:"omitempty,max=4096"`
	Emergency       bool   `json:"emergency,omitempty"`
	TaskState       string `json:"task_state,omitempty"`
	TaskDescription string `json:"task_description,omitempty" validate:"omitempty,max=512"`

	// mark_read
	MessageIDs []string `json:"message_ids,omitempty" validate:"omitempty,dive,uuid"`
}

// DecodeFrame parses and validates one inbound frame.
func DecodeFrame(raw []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ClientFrame{}, fmt.Errorf("malformed frame: %w", err)
	}
	if err := validate.Struct(frame); err != nil {
		return ClientFrame{}, fmt.Errorf("invalid frame: %w", err)
	}
	return frame, nil
}

func (f ClientFrame) ParsedMessageIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, raw := range f.MessageIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// ServerFrame is one outbound event as seen on the wire.
type ServerFrame struct {
	Type string `json:"type"`

	Room string `json:"room,omitempty"`

	Message  *WireMessage  `json:"message,omitempty"`
	Messages []WireMessage `json:"messages,omitempty"`

	MessageID  string   `json:"message_id,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
	Status     string   `json:"status,omitempty"`

	Paused          *bool `json:"paused,omitempty"`
	InterjectActive *bool `json:"interject_active,omitempty"`
	Interjection    bool  `json:"interjection,omitempty"`

	Pending []WirePending `json:"pending,omitempty"`

	Identity     string `json:"identity,omitempty"`
	Role         string `json:"role,omitempty"`
	PrimaryHuman bool   `json:"primary_human,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	Online       *bool  `json:"online,omitempty"`

	Text   string `json:"text,omitempty"`
	Reason string `json:"reason,omitempty"`

	At *time.Time `json:"at,omitempty"`
}

type WireMessage struct {
	ID                 string     `json:"id"`
	Sender             string     `json:"sender"`
	SenderRole         string     `json:"sender_role"`
	SenderName         string     `json:"sender_name"`
	Body               string     `json:"body"`
	Status             string     `json:"status"`
	Emergency          bool       `json:"emergency,omitempty"`
	HeldForAI          bool       `json:"held_for_ai,omitempty"`
	DelayedUntil       *time.Time `json:"delayed_until,omitempty"`
	BlockedByInterject bool       `json:"blocked_by_interject,omitempty"`
	ReleasedAt         *time.Time `json:"released_at,omitempty"`
	TaskState          string     `json:"task_state,omitempty"`
	TaskDescription    string     `json:"task_description,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type WirePending struct {
	MessageID string    `json:"message_id"`
	ReleaseAt time.Time `json:"release_at"`
}

func toWireMessage(m domain.Message) WireMessage {
	return WireMessage{
		ID:                 m.ID.String(),
		Sender:             string(m.Sender),
		SenderRole:         string(m.SenderRole),
		SenderName:         m.SenderName,
		Body:               m.Body,
		Status:             string(m.Status),
		Emergency:          m.Emergency,
		HeldForAI:          m.HeldForAI,
		DelayedUntil:       m.DelayedUntil,
		BlockedByInterject: m.BlockedByInterject,
		ReleasedAt:         m.ReleasedAt,
		TaskState:          string(m.TaskState),
		TaskDescription:    m.TaskDescription,
		CreatedAt:          m.CreatedAt,
	}
}

func toWirePending(entries []event.PendingDelay) []WirePending {
	return lo.Map(entries, func(e event.PendingDelay, _ int) WirePending {
		return WirePending{MessageID: e.MessageID.String(), ReleaseAt: e.ReleaseAt}
	})
}

func idStrings(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}

// EncodeEvent maps a domain event to its wire frame.
func EncodeEvent(e event.DomainEvent) (ServerFrame, bool) {
	room := string(e.RoomCode())
	switch evt := e.(type) {
	case event.NewMessage:
		return ServerFrame{
			Type:         "new_message",
			Room:         room,
			Message:      lo.ToPtr(toWireMessage(evt.Message)),
			Interjection: evt.Interjection,
		}, true
	case event.StatusUpdate:
		return ServerFrame{
			Type:      "status_update",
			Room:      room,
			MessageID: evt.MessageID.String(),
			Status:    string(evt.Status),
		}, true
	case event.ReadBatch:
		return ServerFrame{
			Type:       "read_batch_update",
			Room:       room,
			MessageIDs: idStrings(evt.MessageIDs),
		}, true
	case event.PauseUpdated:
		return ServerFrame{Type: "pause_updated", Room: room, Paused: lo.ToPtr(evt.Paused)}, true
	case event.InterjectUpdated:
		return ServerFrame{Type: "interject_updated", Room: room, InterjectActive: lo.ToPtr(evt.Active)}, true
	case event.PendingDelayUpdate:
		return ServerFrame{Type: "pending_delay_update", Room: room, Pending: toWirePending(evt.Entries)}, true
	case event.ReleasedMessages:
		return ServerFrame{
			Type:       "released_messages",
			Room:       room,
			MessageIDs: idStrings(evt.MessageIDs),
		}, true
	case event.RoleBound:
		return ServerFrame{
			Type:         "role_bound",
			Room:         room,
			Identity:     string(evt.Identity),
			Role:         string(evt.Role),
			PrimaryHuman: evt.PrimaryHuman,
			DisplayName:  evt.DisplayName,
		}, true
	case event.PresenceUpdate:
		return ServerFrame{
			Type:        "presence_update",
			Room:        room,
			Identity:    string(evt.Identity),
			DisplayName: evt.DisplayName,
			Online:      lo.ToPtr(evt.Online),
		}, true
	case event.Notice:
		return ServerFrame{Type: "notice", Room: room, Text: evt.Text, At: lo.ToPtr(evt.At)}, true
	case event.HistorySnapshot:
		return ServerFrame{
			Type:            "history_snapshot",
			Room:            room,
			Messages:        lo.Map(evt.Messages, func(m domain.Message, _ int) WireMessage { return toWireMessage(m) }),
			Paused:          lo.ToPtr(evt.Paused),
			InterjectActive: lo.ToPtr(evt.InterjectActive),
			Pending:         toWirePending(evt.Pending),
		}, true
	case event.Denied:
		return ServerFrame{Type: "denied", Room: room, Reason: evt.Reason}, true
	default:
		return ServerFrame{}, false
	}
}
