//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"crosstalk/domain"
)

type IMessageRepository interface {
	Append(message domain.Message) error
	Update(message domain.Message) error
	GetByID(room domain.RoomCode, id uuid.UUID) (domain.Message, error)
	History(room domain.RoomCode, cursor *string) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// diskMessage is the stored shape of a message. Pointers keep the
// optional timestamps distinguishable from zero values on disk.
type diskMessage struct {
	ID                 string     `cbor:"1,keyasint"`
	Room               string     `cbor:"2,keyasint"`
	Sender             string     `cbor:"3,keyasint"`
	SenderRole         string     `cbor:"4,keyasint"`
	SenderName         string     `cbor:"5,keyasint"`
	Body               string     `cbor:"6,keyasint"`
	Status             string     `cbor:"7,keyasint"`
	Emergency          bool       `cbor:"8,keyasint"`
	HeldForAI          bool       `cbor:"9,keyasint"`
	DelayedUntil       *time.Time `cbor:"10,keyasint,omitempty"`
	BlockedByInterject bool       `cbor:"11,keyasint"`
	ReleasedAt         *time.Time `cbor:"12,keyasint,omitempty"`
	TaskState          string     `cbor:"13,keyasint"`
	TaskDescription    string     `cbor:"14,keyasint"`
	CreatedAt          time.Time  `cbor:"15,keyasint"`
}

// messageKey formats the primary key as "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Room, m.CreatedAt.UnixNano(), m.ID))
}

// indexKey maps a message id back to its primary key so status updates
// and read acks can find the record without knowing its timestamp.
func indexKey(room domain.RoomCode, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msgidx:%s:%s", room, id))
}

// Append persists a new message and its id index in one transaction.
func (m MessageRepository) Append(message domain.Message) error {
	bytes, err := enc.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	key := messageKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.Room, message.ID), key)
	})
}

// Update rewrites an existing record in place. Only status, blocked and
// released fields legitimately change after Append; the key is stable
// because room, creation time and id are immutable.
func (m MessageRepository) Update(message domain.Message) error {
	bytes, err := enc.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), bytes)
	})
}

func (m MessageRepository) GetByID(room domain.RoomCode, id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(room, id))
		if err != nil {
			return err
		}
		var primary []byte
		if err := item.Value(func(val []byte) error {
			primary = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		item, err = txn.Get(primary)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var disk diskMessage
			if err := cbor.Unmarshal(val, &disk); err != nil {
				return err
			}
			message, err = toMessage(disk)
			return err
		})
	})
	return message, err
}

// History retrieves messages for a room using a reverse prefix scan,
// newest first, paged by the opaque cursor. Thanks to the padded
// timestamp in the key, records are naturally sorted by time. The page
// size is capped by the configured limitMessages.
func (m MessageRepository) History(room domain.RoomCode, cursor *string) ([]domain.Message, *string, error) {
	var byteMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk back
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	for _, b := range byteMessages {
		var disk diskMessage
		if err = cbor.Unmarshal(b, &disk); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(disk)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	return messages, lo.ToPtr(lastKey), nil
}

// DecodeMessage decodes a raw stored value, for inspection tooling.
func DecodeMessage(val []byte) (domain.Message, error) {
	var disk diskMessage
	if err := cbor.Unmarshal(val, &disk); err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk)
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:                 m.ID.String(),
		Room:               string(m.Room),
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
		CreatedAt:          m.CreatedAt.UTC(),
	}
}

func toMessage(d diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:                 parsedID,
		Room:               domain.RoomCode(d.Room),
		Sender:             domain.Identity(d.Sender),
		SenderRole:         domain.Role(d.SenderRole),
		SenderName:         d.SenderName,
		Body:               d.Body,
		Status:             domain.Status(d.Status),
		Emergency:          d.Emergency,
		HeldForAI:          d.HeldForAI,
		DelayedUntil:       d.DelayedUntil,
		BlockedByInterject: d.BlockedByInterject,
		ReleasedAt:         d.ReleasedAt,
		TaskState:          domain.TaskState(d.TaskState),
		TaskDescription:    d.TaskDescription,
		CreatedAt:          d.CreatedAt.UTC(),
	}, nil
}
