package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cloud-connect/domain"
	"cloud-connect/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when auth is added.
		return true
	},
}

// Handler upgrades HTTP requests into event-protocol connections and runs
// the per-connection read loop. Events from one connection are processed in
// emission order; events from different connections have no guaranteed
// relative order.
type Handler struct {
	service    services.ISessionService
	log        *slog.Logger
	bufferSize int
	maxContent int
}

func NewHandler(log *slog.Logger, service services.ISessionService, bufferSize, maxContent int) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		bufferSize: bufferSize,
		maxContent: maxContent,
	}
}

func (h *Handler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
			return
		}

		conn := NewConnection(ws, h.log, h.bufferSize)
		conn.Start()
		h.log.Debug("connection opened", "conn", conn.ID)

		h.readLoop(c.Request.Context(), conn, ws)
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *Connection, ws *websocket.Conn) {
	ws.SetReadLimit(int64(h.maxContent + 1024))
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer func() {
		// Transport-level disconnect triggers the protocol cleanup.
		_ = h.service.Disconnect(ctx, conn.ID)
		conn.Close()
		h.log.Debug("connection closed", "conn", conn.ID)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read failed", "conn", conn.ID, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		h.dispatch(ctx, conn, data)
	}
}

// dispatch routes one inbound frame. Per the protocol there is no error
// event: malformed frames, unknown events, and failed operations all end
// here, logged server-side only.
func (h *Handler) dispatch(ctx context.Context, conn *Connection, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Debug("malformed frame", "conn", conn.ID, "error", err)
		return
	}

	var err error
	switch env.Event {
	case evJoinRoom:
		err = h.join(ctx, conn, env.Data)
	case evSendMessage:
		err = h.sendMessage(ctx, env.Data)
	case evApproveMessage:
		err = h.approveMessage(ctx, env.Data)
	case evApproveUser:
		err = h.approveUser(ctx, env.Data)
	case evKickUser:
		err = h.kickUser(ctx, env.Data)
	case evDeleteRoom:
		err = h.deleteRoom(ctx, env.Data)
	default:
		h.log.Debug("unknown event", "conn", conn.ID, "event", env.Event)
		return
	}
	if err != nil {
		h.log.Debug("event rejected", "conn", conn.ID, "event", env.Event, "error", err)
	}
}

func (h *Handler) join(ctx context.Context, conn *Connection, data json.RawMessage) error {
	var p joinPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		return err
	}
	userID := uuid.Nil
	if p.UserID != "" {
		userID = uuid.MustParse(p.UserID)
	}
	return h.service.Join(ctx, conn.ID, conn.Sink, services.JoinCommand{
		RoomCode: p.RoomCode,
		Role:     role,
		UserID:   userID,
	})
}

func (h *Handler) sendMessage(ctx context.Context, data json.RawMessage) error {
	var p sendMessagePayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if len(p.Content) > h.maxContent {
		return fmt.Errorf("content exceeds %d bytes", h.maxContent)
	}
	return h.service.SendMessage(ctx, services.SendMessageCommand{
		UserID:   uuid.MustParse(p.UserID),
		RoomCode: p.RoomCode,
		Content:  p.Content,
	})
}

func (h *Handler) approveMessage(ctx context.Context, data json.RawMessage) error {
	var p approveMessagePayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	return h.service.ApproveMessage(ctx, uuid.MustParse(p.MessageID))
}

func (h *Handler) approveUser(ctx context.Context, data json.RawMessage) error {
	var p approveUserPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	return h.service.ApproveUser(ctx, uuid.MustParse(p.UserID))
}

func (h *Handler) kickUser(ctx context.Context, data json.RawMessage) error {
	var p kickUserPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	return h.service.KickUser(ctx, services.KickCommand{
		UserID:   uuid.MustParse(p.UserID),
		RoomCode: p.RoomCode,
	})
}

func (h *Handler) deleteRoom(ctx context.Context, data json.RawMessage) error {
	var p deleteRoomPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	return h.service.DeleteRoom(ctx, p.RoomCode)
}
