// Package event defines the outbound protocol events delivered to live
// connections. The set is closed: every event carries its wire name and the
// payload shape clients deserialize.
package event

import (
	"time"

	"github.com/google/uuid"

	"cloud-connect/domain"
)

// Event is anything the dispatcher can deliver to a sink. Name is the wire
// event name of the envelope; the event value itself is the payload.
type Event interface {
	Name() string
}

// Sender is the populated sender of a message.
type Sender struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// RoomRef is the populated owning room of a message.
type RoomRef struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"roomCode"`
}

// PopulatedMessage is the wire form of a message with sender and room
// resolved. The same id delivered via receive_message and later via
// broadcast_message carries identical content and sender.
type PopulatedMessage struct {
	ID        uuid.UUID     `json:"id"`
	Content   string        `json:"content"`
	Status    domain.Status `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	Sender    Sender        `json:"sender"`
	Room      RoomRef       `json:"room"`
}

// LiveUser is one entry of the superadmin presence snapshot.
type LiveUser struct {
	ID       uuid.UUID   `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	IsOnline bool        `json:"isOnline"`
}

// RoomDeleted tells a client its room does not exist, either because a join
// targeted an unknown code or because the room was torn down.
type RoomDeleted struct{}

func (RoomDeleted) Name() string { return "room_deleted" }

// LoadMessages is the participant snapshot: approved messages, ascending.
type LoadMessages []PopulatedMessage

func (LoadMessages) Name() string { return "load_messages" }

// LoadPendingMessages is the admin moderation queue snapshot.
type LoadPendingMessages []PopulatedMessage

func (LoadPendingMessages) Name() string { return "load_pending_messages" }

// LoadBroadcastMessages is the broadcast-view snapshot: approved only.
type LoadBroadcastMessages []PopulatedMessage

func (LoadBroadcastMessages) Name() string { return "load_broadcast_messages" }

// ReceiveMessage carries a freshly submitted message to the whole room,
// pre-moderation.
type ReceiveMessage struct {
	PopulatedMessage
}

func (ReceiveMessage) Name() string { return "receive_message" }

// NewPendingMessage is the moderation-queue notification for the same
// submission; admins act on this one.
type NewPendingMessage struct {
	PopulatedMessage
}

func (NewPendingMessage) Name() string { return "new_pending_message" }

// BroadcastMessage announces an approved message to the broadcast subgroup.
type BroadcastMessage struct {
	PopulatedMessage
}

func (BroadcastMessage) Name() string { return "broadcast_message" }

// UserApproved is delivered to the approved user's connection only, never
// room-wide.
type UserApproved struct {
	UserID uuid.UUID `json:"userId"`
}

func (UserApproved) Name() string { return "user_approved" }

// KickedFromRoom is the terminal notification to a removed user's
// connection; the client must discard its local session state.
type KickedFromRoom struct {
	Message string `json:"message"`
}

func (KickedFromRoom) Name() string { return "kicked_from_room" }

// SuperadminLiveUsers is the online+approved presence snapshot.
type SuperadminLiveUsers []LiveUser

func (SuperadminLiveUsers) Name() string { return "superadmin_live_users" }
