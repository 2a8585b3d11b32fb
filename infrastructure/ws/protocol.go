package ws

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"cloud-connect/domain/event"
)

// Event names accepted from clients.
const (
	evJoinRoom       = "join_room"
	evSendMessage    = "send_message"
	evApproveMessage = "approve_message"
	evApproveUser    = "approve_user"
	evKickUser       = "kick_user"
	evDeleteRoom     = "delete_room"
)

// Envelope is the wire frame in both directions: an event name plus its
// payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
	Role     string `json:"role" validate:"required"`
	UserID   string `json:"userId" validate:"omitempty,uuid"`
}

type sendMessagePayload struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	RoomCode string `json:"roomCode" validate:"required"`
	Content  string `json:"content"`
}

type approveMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
}

type approveUserPayload struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

type kickUserPayload struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	RoomCode string `json:"roomCode"`
}

type deleteRoomPayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

var validate = validator.New()

// decodePayload unmarshals and validates an inbound payload. Malformed or
// invalid payloads never reach the coordinator; the protocol has no error
// event, so the caller drops them.
func decodePayload(data json.RawMessage, payload any) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}

// Encode wraps an outbound event into its wire envelope.
func Encode(e event.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: data})
}
