package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"crosstalk/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMessage(room domain.RoomCode, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		Room:       room,
		Sender:     "AB2CD",
		SenderRole: domain.RoleHuman,
		SenderName: "MainHuman-AB2CD",
		Body:       body,
		Status:     domain.StatusSent,
		CreatedAt:  at,
	}
}

func Test_Append_And_GetByID_Roundtrip(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC().Truncate(time.Millisecond)
	release := at.Add(10 * time.Second)
	msg := testMessage("LOBBY", "this message will self destruct in 5 seconds", at)
	msg.SenderRole = domain.RoleAI
	msg.SenderName = "AI-AB2CD"
	msg.DelayedUntil = &release
	msg.TaskState = domain.TaskWorking
	msg.TaskDescription = "refactoring the parser"

	req.NoError(repository.Append(msg))

	fetched, err := repository.GetByID("LOBBY", msg.ID)
	req.NoError(err)
	req.Equal(msg.ID, fetched.ID)
	req.Equal(msg.Body, fetched.Body)
	req.Equal(domain.RoleAI, fetched.SenderRole)
	req.Equal(domain.StatusSent, fetched.Status)
	req.NotNil(fetched.DelayedUntil)
	req.True(fetched.DelayedUntil.Equal(release))
	req.Equal(domain.TaskWorking, fetched.TaskState)
	req.True(fetched.CreatedAt.Equal(at))
	req.Nil(fetched.ReleasedAt)
}

func Test_GetByID_Unknown_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	_, err := repository.GetByID("LOBBY", uuid.New())
	req.Error(err)
}

func Test_Update_Persists_Status_And_Release(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	msg := testMessage("LOBBY", "held for a while", time.Now().UTC())
	msg.HeldForAI = true
	req.NoError(repository.Append(msg))

	// When the pause lifts and the message is delivered
	now := time.Now().UTC()
	msg.ReleasedAt = &now
	msg.Advance(domain.StatusDelivered)
	req.NoError(repository.Update(msg))

	fetched, err := repository.GetByID("LOBBY", msg.ID)
	req.NoError(err)
	req.Equal(domain.StatusDelivered, fetched.Status)
	req.NotNil(fetched.ReleasedAt)
}

func Test_Update_After_Roundtrip_Rewrites_Same_Record(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	// CreatedAt deliberately carries sub-second precision: the primary
	// key is derived from it, so a lossy encoding would make the
	// round-tripped Update land under a different key than Append.
	at := time.Now().UTC().Add(123456789 * time.Nanosecond)
	msg := testMessage("LOBBY", "acked later", at)
	req.NoError(repository.Append(msg))

	fetched, err := repository.GetByID("LOBBY", msg.ID)
	req.NoError(err)
	req.True(fetched.CreatedAt.Equal(at))

	fetched.Advance(domain.StatusRead)
	req.NoError(repository.Update(fetched))

	// The index still resolves to the updated record, and no duplicate
	// row appeared
	again, err := repository.GetByID("LOBBY", msg.ID)
	req.NoError(err)
	req.Equal(domain.StatusRead, again.Status)

	history, _, err := repository.History("LOBBY", nil)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(domain.StatusRead, history[0].Status)
}

func Test_History_Returns_Newest_First(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC()
	bodies := []string{"first", "second", "third"}
	for i, body := range bodies {
		req.NoError(repository.Append(testMessage("LOBBY", body, at.Add(time.Duration(i)*time.Minute))))
	}
	// Another room's traffic never leaks into the scan
	req.NoError(repository.Append(testMessage("ELSEWHERE", "noise", at)))

	messages, _, err := repository.History("LOBBY", nil)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("third", messages[0].Body)
	req.Equal("second", messages[1].Body)
	req.Equal("first", messages[2].Body)
}

func Test_History_Pages_With_Cursor(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)

	at := time.Now().UTC()
	for i, body := range []string{"first", "second", "third"} {
		req.NoError(repository.Append(testMessage("LOBBY", body, at.Add(time.Duration(i)*time.Minute))))
	}

	// First page is capped at the limit, newest first
	page, cursor, err := repository.History("LOBBY", nil)
	req.NoError(err)
	req.Len(page, limit)
	req.Equal("third", page[0].Body)
	req.Equal("second", page[1].Body)
	req.NotNil(cursor)

	// Second page resumes past the cursor
	page, _, err = repository.History("LOBBY", cursor)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("first", page[0].Body)
}
