//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"cloud-connect/domain"
	apperrors "cloud-connect/errors"
)

type IRoomRepository interface {
	Create(room domain.Room) error
	FindByCode(code string) (domain.Room, error)
	FindByID(id uuid.UUID) (domain.Room, error)
	Delete(id uuid.UUID) error
}

type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// diskRoom is the stored representation of a room.
type diskRoom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"roomCode"`
}

func roomKey(code string) []byte    { return []byte("room:" + code) }
func roomIDKey(id uuid.UUID) []byte { return []byte("room_id:" + id.String()) }

// Create persists a room under its canonical code. The "room_id:{id}" index
// maps the id back to the code so messages, which own a room id only, can be
// resolved to a code at emission time.
func (r RoomRepository) Create(room domain.Room) error {
	room.Code = domain.NormalizeCode(room.Code)
	data, err := json.Marshal(fromRoom(room))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.Code)); err == nil {
			return apperrors.ErrRoomCodeTaken
		}
		if err := txn.Set(roomKey(room.Code), data); err != nil {
			return err
		}
		return txn.Set(roomIDKey(room.ID), []byte(room.Code))
	})
}

func (r RoomRepository) FindByCode(code string) (domain.Room, error) {
	var disk diskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(domain.NormalizeCode(code)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, apperrors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(disk)
}

func (r RoomRepository) FindByID(id uuid.UUID) (domain.Room, error) {
	var code string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomIDKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			code = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, apperrors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return r.FindByCode(code)
}

func (r RoomRepository) Delete(id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(roomIDKey(id))
		if err == badger.ErrKeyNotFound {
			return apperrors.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var code string
		if err := item.Value(func(val []byte) error {
			code = string(val)
			return nil
		}); err != nil {
			return err
		}
		if err := txn.Delete(roomKey(code)); err != nil {
			return err
		}
		return txn.Delete(roomIDKey(id))
	})
}

func fromRoom(room domain.Room) diskRoom {
	return diskRoom{
		ID:   room.ID.String(),
		Name: room.Name,
		Code: room.Code,
	}
}

func toRoom(disk diskRoom) (domain.Room, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Room{}, err
	}
	return domain.Room{
		ID:   id,
		Name: disk.Name,
		Code: disk.Code,
	}, nil
}
