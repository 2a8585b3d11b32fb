package domain

import "github.com/google/uuid"

// User belongs to exactly one room. Status covers admission only;
// IsOnline is a best-effort liveness hint, not durable membership.
// The live connection handle is tracked by the runtime registry and is
// deliberately not part of the persisted record.
type User struct {
	ID       uuid.UUID
	Username string
	RoomID   uuid.UUID
	Role     Role
	Status   Status
	IsOnline bool
}
