//go:generate go run go.uber.org/mock/mockgen -source=participant.go -destination=../mocks/mock_participant_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"crosstalk/domain"
)

type IParticipantRepository interface {
	Get(room domain.RoomCode, id domain.Identity) (domain.Participant, bool, error)
	Upsert(p domain.Participant) error
	List(room domain.RoomCode) ([]domain.Participant, error)
	Exists(room domain.RoomCode, id domain.Identity) (bool, error)
	HasPrimaryHuman(room domain.RoomCode) (bool, error)
}

type ParticipantRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewParticipantRepository(db *badger.DB, log *slog.Logger) ParticipantRepository {
	return ParticipantRepository{db: db, log: log}
}

type diskParticipant struct {
	Identity     string    `cbor:"1,keyasint"`
	Room         string    `cbor:"2,keyasint"`
	Role         string    `cbor:"3,keyasint"`
	PrimaryHuman bool      `cbor:"4,keyasint"`
	DisplayName  string    `cbor:"5,keyasint"`
	Online       bool      `cbor:"6,keyasint"`
	LastSeen     time.Time `cbor:"7,keyasint"`
}

func participantKey(room domain.RoomCode, id domain.Identity) []byte {
	return []byte(fmt.Sprintf("participant:%s:%s", room, id))
}

func (r ParticipantRepository) Get(room domain.RoomCode, id domain.Identity) (domain.Participant, bool, error) {
	var p domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(participantKey(room, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var disk diskParticipant
			if err := cbor.Unmarshal(val, &disk); err != nil {
				return err
			}
			p = toParticipant(disk)
			return nil
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, err
	}
	return p, true, nil
}

func (r ParticipantRepository) Upsert(p domain.Participant) error {
	bytes, err := enc.Marshal(fromParticipant(p))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(participantKey(p.Room, p.Identity), bytes)
	})
}

// List returns every participant ever bound in the room, in identity
// order. Rooms hold a handful of participants, a prefix scan is fine.
func (r ParticipantRepository) List(room domain.RoomCode) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("participant:%s:", room))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var disk diskParticipant
				if err := cbor.Unmarshal(val, &disk); err != nil {
					return err
				}
				participants = append(participants, toParticipant(disk))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return participants, err
}

func (r ParticipantRepository) Exists(room domain.RoomCode, id domain.Identity) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(participantKey(room, id))
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasPrimaryHuman reports whether the room already fixed its primary
// human. The answer only ever goes from false to true.
func (r ParticipantRepository) HasPrimaryHuman(room domain.RoomCode) (bool, error) {
	participants, err := r.List(room)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if p.PrimaryHuman {
			return true, nil
		}
	}
	return false, nil
}

// DecodeParticipant decodes a raw stored value, for inspection tooling.
func DecodeParticipant(val []byte) (domain.Participant, error) {
	var disk diskParticipant
	if err := cbor.Unmarshal(val, &disk); err != nil {
		return domain.Participant{}, err
	}
	return toParticipant(disk), nil
}

func fromParticipant(p domain.Participant) diskParticipant {
	return diskParticipant{
		Identity:     string(p.Identity),
		Room:         string(p.Room),
		Role:         string(p.Role),
		PrimaryHuman: p.PrimaryHuman,
		DisplayName:  p.DisplayName,
		Online:       p.Online,
		LastSeen:     p.LastSeen.UTC(),
	}
}

func toParticipant(d diskParticipant) domain.Participant {
	return domain.Participant{
		Identity:     domain.Identity(d.Identity),
		Room:         domain.RoomCode(d.Room),
		Role:         domain.Role(d.Role),
		PrimaryHuman: d.PrimaryHuman,
		DisplayName:  d.DisplayName,
		Online:       d.Online,
		LastSeen:     d.LastSeen.UTC(),
	}
}
