package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is created pending and becomes approved exactly once.
// Content is immutable after creation; approval never rewrites it.
type Message struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	SenderID  uuid.UUID
	Content   string
	Status    Status
	CreatedAt time.Time
}
