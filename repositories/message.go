//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"cloud-connect/domain"
	apperrors "cloud-connect/errors"
)

type IMessageRepository interface {
	Create(message domain.Message) error
	FindByID(id uuid.UUID) (domain.Message, error)
	SetStatus(id uuid.UUID, status domain.Status) error
	ListByRoom(roomID uuid.UUID, status *domain.Status) ([]domain.Message, error)
	Delete(id uuid.UUID) error
	DeleteByRoom(roomID uuid.UUID) ([]uuid.UUID, error)
}

type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// diskMessage is the stored representation of a message.
type diskMessage struct {
	ID        string `json:"id"`
	RoomID    string `json:"room"`
	SenderID  string `json:"sender"`
	Content   string `json:"content"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// messageKey is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func messageKey(roomID, id uuid.UUID, at time.Time) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", roomID, at.UnixNano(), id))
}

func messageIDKey(id uuid.UUID) []byte { return []byte("msg_id:" + id.String()) }

func messagePrefix(roomID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", roomID))
}

func (m MessageRepository) Create(message domain.Message) error {
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	key := messageKey(message.RoomID, message.ID, message.CreatedAt)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		// The "msg_id:{id}" index maps an id to its primary key so that
		// moderation, which only knows the id, can reach the record.
		return txn.Set(messageIDKey(message.ID), key)
	})
}

func (m MessageRepository) FindByID(id uuid.UUID) (domain.Message, error) {
	var disk diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		return readMessage(txn, id, &disk)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk)
}

// SetStatus is an unconditional set; approving an already-approved message
// re-applies the terminal state. Content is never touched.
func (m MessageRepository) SetStatus(id uuid.UUID, status domain.Status) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		var disk diskMessage
		if err := readMessage(txn, id, &disk); err != nil {
			return err
		}
		disk.Status = string(status)
		data, err := json.Marshal(disk)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		roomID, err := uuid.Parse(disk.RoomID)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(roomID, id, time.Unix(0, disk.CreatedAt)), data)
	})
	if err == badger.ErrKeyNotFound {
		return apperrors.ErrMessageNotFound
	}
	return err
}

// ListByRoom returns the room's messages in ascending creation order; the
// padded timestamp in the key makes forward iteration chronological. A nil
// status returns every message, otherwise only the matching slice.
func (m MessageRepository) ListByRoom(roomID uuid.UUID, status *domain.Status) ([]domain.Message, error) {
	var disks []diskMessage
	prefix := messagePrefix(roomID)
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			if status != nil && disk.Status != string(*status) {
				continue
			}
			disks = append(disks, disk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(disks))
	for _, disk := range disks {
		message, err := toMessage(disk)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (m MessageRepository) Delete(id uuid.UUID) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIDKey(id))
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIDKey(id))
	})
	if err == badger.ErrKeyNotFound {
		return apperrors.ErrMessageNotFound
	}
	return err
}

// DeleteByRoom removes every message of the room and returns the deleted ids
// so callers can purge derived state such as the search index.
func (m MessageRepository) DeleteByRoom(roomID uuid.UUID) ([]uuid.UUID, error) {
	messages, err := m.ListByRoom(roomID, nil)
	if err != nil {
		return nil, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		for _, message := range messages {
			key := messageKey(roomID, message.ID, message.CreatedAt)
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(messageIDKey(message.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.ID)
	}
	return ids, nil
}

func readMessage(txn *badger.Txn, id uuid.UUID, disk *diskMessage) error {
	item, err := txn.Get(messageIDKey(id))
	if err != nil {
		return err
	}
	var key []byte
	if err := item.Value(func(val []byte) error {
		key = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return err
	}
	record, err := txn.Get(key)
	if err != nil {
		return err
	}
	return record.Value(func(val []byte) error {
		return json.Unmarshal(val, disk)
	})
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:        message.ID.String(),
		RoomID:    message.RoomID.String(),
		SenderID:  message.SenderID.String(),
		Content:   message.Content,
		Status:    string(message.Status),
		CreatedAt: message.CreatedAt.UnixNano(),
	}
}

func toMessage(disk diskMessage) (domain.Message, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	roomID, err := uuid.Parse(disk.RoomID)
	if err != nil {
		return domain.Message{}, err
	}
	senderID, err := uuid.Parse(disk.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   disk.Content,
		Status:    domain.Status(disk.Status),
		CreatedAt: time.Unix(0, disk.CreatedAt).UTC(),
	}, nil
}
