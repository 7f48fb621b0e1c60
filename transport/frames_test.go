package transport

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

func Test_DecodeFrame_Valid_Frames(t *testing.T) {
	req := require.New(t)

	frame, err := DecodeFrame([]byte(`{"type":"join","role":"ai","identity":"AB2CD"}`))
	req.NoError(err)
	req.Equal("join", frame.Type)
	req.Equal("ai", frame.Role)
	req.Equal("AB2CD", frame.Identity)

	frame, err = DecodeFrame([]byte(`{"type":"send_message","body":"hello","emergency":true}`))
	req.NoError(err)
	req.True(frame.Emergency)

	frame, err = DecodeFrame([]byte(`{"type":"toggle_pause","pause":true}`))
	req.NoError(err)
	req.True(frame.Pause)
}

func Test_DecodeFrame_Rejects_Garbage(t *testing.T) {
	req := require.New(t)

	cases := []string{
		`not json at all`,
		`{}`,
		`{"type":"self_destruct"}`,
		`{"type":"join","role":"robot"}`,
		`{"type":"join","identity":"AB"}`,
		`{"type":"join","identity":"AB CD"}`,
		`{"type":"mark_read","message_ids":["definitely-not-a-uuid"]}`,
	}
	for _, raw := range cases {
		_, err := DecodeFrame([]byte(raw))
		req.Error(err, "frame %s should be rejected", raw)
	}
}

func Test_ParsedMessageIDs_Skips_Invalid(t *testing.T) {
	req := require.New(t)
	id := uuid.New()
	frame := ClientFrame{MessageIDs: []string{id.String(), "nope"}}

	req.Equal([]uuid.UUID{id}, frame.ParsedMessageIDs())
}

func Test_EncodeEvent_NewMessage(t *testing.T) {
	req := require.New(t)
	release := time.Now().UTC().Add(10 * time.Second)
	msg := domain.Message{
		ID:           uuid.New(),
		Room:         "LOBBY",
		Sender:       "AB2CD",
		SenderRole:   domain.RoleAI,
		SenderName:   "AI-AB2CD",
		Body:         "hello",
		Status:       domain.StatusSent,
		DelayedUntil: &release,
		CreatedAt:    time.Now().UTC(),
	}

	frame, ok := EncodeEvent(event.NewMessage{Room: "LOBBY", Message: msg, Interjection: true})
	req.True(ok)
	req.Equal("new_message", frame.Type)
	req.Equal("LOBBY", frame.Room)
	req.True(frame.Interjection)
	req.NotNil(frame.Message)
	req.Equal(msg.ID.String(), frame.Message.ID)
	req.Equal("ai", frame.Message.SenderRole)
	req.NotNil(frame.Message.DelayedUntil)
}

func Test_EncodeEvent_State_Frames(t *testing.T) {
	req := require.New(t)
	id := uuid.New()

	frame, ok := EncodeEvent(event.StatusUpdate{Room: "LOBBY", MessageID: id, Status: domain.StatusDelivered})
	req.True(ok)
	req.Equal("status_update", frame.Type)
	req.Equal(id.String(), frame.MessageID)
	req.Equal("delivered", frame.Status)

	frame, ok = EncodeEvent(event.PauseUpdated{Room: "LOBBY", Paused: true})
	req.True(ok)
	req.Equal("pause_updated", frame.Type)
	req.NotNil(frame.Paused)
	req.True(*frame.Paused)

	frame, ok = EncodeEvent(event.InterjectUpdated{Room: "LOBBY", Active: false})
	req.True(ok)
	req.Equal("interject_updated", frame.Type)
	req.NotNil(frame.InterjectActive)
	req.False(*frame.InterjectActive)

	frame, ok = EncodeEvent(event.ReleasedMessages{Room: "LOBBY", MessageIDs: []uuid.UUID{id}})
	req.True(ok)
	req.Equal("released_messages", frame.Type)
	req.Equal([]string{id.String()}, frame.MessageIDs)

	frame, ok = EncodeEvent(event.PendingDelayUpdate{Room: "LOBBY", Entries: []event.PendingDelay{
		{MessageID: id, ReleaseAt: time.Now().UTC()},
	}})
	req.True(ok)
	req.Equal("pending_delay_update", frame.Type)
	req.Len(frame.Pending, 1)
	req.Equal(id.String(), frame.Pending[0].MessageID)

	frame, ok = EncodeEvent(event.Denied{Room: "LOBBY", Reason: "only the primary human controls pause"})
	req.True(ok)
	req.Equal("denied", frame.Type)
	req.Equal("only the primary human controls pause", frame.Reason)
}

func Test_EncodeEvent_RoleBound_And_Snapshot(t *testing.T) {
	req := require.New(t)

	frame, ok := EncodeEvent(event.RoleBound{
		Room: "LOBBY", Identity: "AB2CD", Role: domain.RoleHuman,
		PrimaryHuman: true, DisplayName: "MainHuman-AB2CD",
	})
	req.True(ok)
	req.Equal("role_bound", frame.Type)
	req.Equal("AB2CD", frame.Identity)
	req.Equal("human", frame.Role)
	req.True(frame.PrimaryHuman)
	req.Equal("MainHuman-AB2CD", frame.DisplayName)

	frame, ok = EncodeEvent(event.HistorySnapshot{
		Room:            "LOBBY",
		Messages:        []domain.Message{{ID: uuid.New(), Body: "hi"}},
		Paused:          true,
		InterjectActive: false,
	})
	req.True(ok)
	req.Equal("history_snapshot", frame.Type)
	req.Len(frame.Messages, 1)
	req.NotNil(frame.Paused)
	req.True(*frame.Paused)
}
