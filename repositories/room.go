//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"crosstalk/domain"
	"crosstalk/errors"
)

type IRoomRepository interface {
	Get(code domain.RoomCode) (domain.Room, error)
	GetOrCreate(code domain.RoomCode) (domain.Room, error)
	SetPaused(code domain.RoomCode, paused bool) error
}

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

type diskRoom struct {
	Code      string    `cbor:"1,keyasint"`
	Paused    bool      `cbor:"2,keyasint"`
	CreatedAt time.Time `cbor:"3,keyasint"`
}

func roomKey(code domain.RoomCode) []byte {
	return []byte(fmt.Sprintf("room:%s", code))
}

func (r RoomRepository) Get(code domain.RoomCode) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(code))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var disk diskRoom
			if err := cbor.Unmarshal(val, &disk); err != nil {
				return err
			}
			room = toRoom(disk)
			return nil
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	return room, err
}

// GetOrCreate resolves a room by code, creating the record on first
// join. Room codes arrive from clients; creation is deliberately thin.
func (r RoomRepository) GetOrCreate(code domain.RoomCode) (domain.Room, error) {
	room, err := r.Get(code)
	if err == nil {
		return room, nil
	}
	if !stderrors.Is(err, errors.ErrRoomNotFound) {
		return domain.Room{}, err
	}
	room = domain.Room{Code: code, CreatedAt: time.Now().UTC()}
	if err := r.put(room); err != nil {
		return domain.Room{}, err
	}
	r.log.Info(fmt.Sprintf("Room %s created", code))
	return room, nil
}

func (r RoomRepository) SetPaused(code domain.RoomCode, paused bool) error {
	room, err := r.Get(code)
	if err != nil {
		return err
	}
	room.Paused = paused
	return r.put(room)
}

func (r RoomRepository) put(room domain.Room) error {
	bytes, err := enc.Marshal(diskRoom{
		Code:      string(room.Code),
		Paused:    room.Paused,
		CreatedAt: room.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.Code), bytes)
	})
}

// DecodeRoom decodes a raw stored value, for inspection tooling.
func DecodeRoom(val []byte) (domain.Room, error) {
	var disk diskRoom
	if err := cbor.Unmarshal(val, &disk); err != nil {
		return domain.Room{}, err
	}
	return toRoom(disk), nil
}

func toRoom(d diskRoom) domain.Room {
	return domain.Room{
		Code:      domain.RoomCode(d.Code),
		Paused:    d.Paused,
		CreatedAt: d.CreatedAt.UTC(),
	}
}
