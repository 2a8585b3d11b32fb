//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"cloud-connect/domain"
	apperrors "cloud-connect/errors"
)

type IUserRepository interface {
	Create(user domain.User) error
	FindByID(id uuid.UUID) (domain.User, error)
	SetStatus(id uuid.UUID, status domain.Status) error
	SetPresence(id uuid.UUID, online bool) error
	ListByRoom(roomID uuid.UUID) ([]domain.User, error)
	DeleteByRoom(roomID uuid.UUID) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// diskUser is the stored representation of a user. The live connection
// handle is deliberately absent: presence bindings live in the runtime
// registry and die with the process.
type diskUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	RoomID   string `json:"room"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	IsOnline bool   `json:"isOnline"`
}

func userKey(id uuid.UUID) []byte { return []byte("user:" + id.String()) }

func userRoomKey(roomID, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("user_room:%s:%s", roomID, id))
}

func userRoomPrefix(roomID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("user_room:%s:", roomID))
}

func (u UserRepository) Create(user domain.User) error {
	data, err := json.Marshal(fromUser(user))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(userKey(user.ID), data); err != nil {
			return err
		}
		return txn.Set(userRoomKey(user.RoomID, user.ID), nil)
	})
}

func (u UserRepository) FindByID(id uuid.UUID) (domain.User, error) {
	var disk diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return readUser(txn, id, &disk)
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, apperrors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(disk)
}

// SetStatus is an unconditional set, not a compare-and-swap. Re-approving an
// approved user re-applies the same terminal state.
func (u UserRepository) SetStatus(id uuid.UUID, status domain.Status) error {
	return u.mutate(id, func(disk *diskUser) {
		disk.Status = string(status)
	})
}

func (u UserRepository) SetPresence(id uuid.UUID, online bool) error {
	return u.mutate(id, func(disk *diskUser) {
		disk.IsOnline = online
	})
}

func (u UserRepository) ListByRoom(roomID uuid.UUID) ([]domain.User, error) {
	var ids []uuid.UUID
	prefix := userRoomPrefix(roomID)
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := uuid.Parse(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		user, err := u.FindByID(id)
		if err == apperrors.ErrUserNotFound {
			// Index entry without a record; skip rather than fail the listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (u UserRepository) DeleteByRoom(roomID uuid.UUID) error {
	users, err := u.ListByRoom(roomID)
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		for _, user := range users {
			if err := txn.Delete(userKey(user.ID)); err != nil {
				return err
			}
			if err := txn.Delete(userRoomKey(roomID, user.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u UserRepository) mutate(id uuid.UUID, apply func(*diskUser)) error {
	err := u.db.Update(func(txn *badger.Txn) error {
		var disk diskUser
		if err := readUser(txn, id, &disk); err != nil {
			return err
		}
		apply(&disk)
		data, err := json.Marshal(disk)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		return txn.Set(userKey(id), data)
	})
	if err == badger.ErrKeyNotFound {
		return apperrors.ErrUserNotFound
	}
	return err
}

func readUser(txn *badger.Txn, id uuid.UUID, disk *diskUser) error {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, disk)
	})
}

func fromUser(user domain.User) diskUser {
	return diskUser{
		ID:       user.ID.String(),
		Username: user.Username,
		RoomID:   user.RoomID.String(),
		Role:     string(user.Role),
		Status:   string(user.Status),
		IsOnline: user.IsOnline,
	}
}

func toUser(disk diskUser) (domain.User, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.User{}, err
	}
	roomID, err := uuid.Parse(disk.RoomID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:       id,
		Username: disk.Username,
		RoomID:   roomID,
		Role:     domain.Role(disk.Role),
		Status:   domain.Status(disk.Status),
		IsOnline: disk.IsOnline,
	}, nil
}
