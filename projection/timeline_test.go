package projection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"crosstalk/domain"
	"crosstalk/domain/event"
)

func newMessageEvent(room domain.RoomCode, name, body string) event.NewMessage {
	return event.NewMessage{
		Room: room,
		Message: domain.Message{
			ID:         uuid.New(),
			Room:       room,
			SenderName: name,
			Body:       body,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func TestTimeline_Consume_NewMessage(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(0)
	ctx := context.Background()

	evt1 := newMessageEvent("LOBBY", "MainHuman-AB2CD", "Hello")
	evt2 := newMessageEvent("LOBBY", "AI-EF3GH", "Hi there")

	req.NoError(timeline.Consume(ctx, evt1))
	req.NoError(timeline.Consume(ctx, evt2))

	messages := timeline.Messages("LOBBY")
	req.Len(messages, 2)
	req.Equal("MainHuman-AB2CD", messages[0].SenderName)
	req.Equal("AI-EF3GH", messages[1].SenderName)
}

func TestTimeline_Dedups_Fanout_Copies(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(0)
	ctx := context.Background()

	// The same message arrives once per recipient sink
	evt := newMessageEvent("LOBBY", "AI-EF3GH", "Hi everyone")
	req.NoError(timeline.Consume(ctx, evt))
	req.NoError(timeline.Consume(ctx, evt))
	req.NoError(timeline.Consume(ctx, evt))

	req.Len(timeline.Messages("LOBBY"), 1)
}

func TestTimeline_Ignores_Other_Events(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(0)

	req.NoError(timeline.Consume(context.Background(), event.PauseUpdated{Room: "LOBBY", Paused: true}))
	req.Empty(timeline.Messages("LOBBY"))
	req.Empty(timeline.Rooms())
}

func TestTimeline_Caps_Per_Room_History(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(2)
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, newMessageEvent("LOBBY", "A", "first")))
	req.NoError(timeline.Consume(ctx, newMessageEvent("LOBBY", "B", "second")))
	req.NoError(timeline.Consume(ctx, newMessageEvent("LOBBY", "C", "third")))

	messages := timeline.Messages("LOBBY")
	req.Len(messages, 2)
	req.Equal("second", messages[0].Body)
	req.Equal("third", messages[1].Body)
}

func TestTimeline_Separates_Rooms(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(0)
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, newMessageEvent("LOBBY", "A", "here")))
	req.NoError(timeline.Consume(ctx, newMessageEvent("ELSEWHERE", "B", "there")))

	req.Len(timeline.Messages("LOBBY"), 1)
	req.Len(timeline.Messages("ELSEWHERE"), 1)
	req.ElementsMatch([]domain.RoomCode{"LOBBY", "ELSEWHERE"}, timeline.Rooms())
}
