package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"cloud-connect/contract"
	"cloud-connect/domain"
	"cloud-connect/domain/event"
	apperrors "cloud-connect/errors"
	"cloud-connect/repositories"
	"cloud-connect/runtime"
	"cloud-connect/search"
)

// kickNotice is the terminal message shown to a removed user.
const kickNotice = "You were removed by Super Admin"

type JoinCommand struct {
	RoomCode string
	Role     domain.Role
	UserID   uuid.UUID // uuid.Nil for anonymous viewers
}

type SendMessageCommand struct {
	UserID   uuid.UUID
	RoomCode string
	Content  string
}

type KickCommand struct {
	UserID   uuid.UUID
	RoomCode string
}

// ISessionService is the room session coordinator: it owns the event
// protocol and enforces the moderation state machine and fan-out rules.
//
// Error semantics follow the protocol: not-found and validation conditions
// return sentinel errors (or nil) without emitting anything; transport
// callers drop them silently, the HTTP surface maps them to status codes.
// No operation leaves a partial side effect visible to other clients.
type ISessionService interface {
	Join(ctx context.Context, conn runtime.ConnID, sink contract.EventSink, cmd JoinCommand) error
	SendMessage(ctx context.Context, cmd SendMessageCommand) error
	ApproveMessage(ctx context.Context, messageID uuid.UUID) error
	ApproveUser(ctx context.Context, userID uuid.UUID) error
	KickUser(ctx context.Context, cmd KickCommand) error
	DeleteRoom(ctx context.Context, roomCode string) error
	Disconnect(ctx context.Context, conn runtime.ConnID) error
}

type SessionService struct {
	rooms      repositories.IRoomRepository
	users      repositories.IUserRepository
	messages   repositories.IMessageRepository
	registry   *runtime.Registry
	dispatcher *runtime.Dispatcher
	index      *search.MessageIndex
	log        *slog.Logger

	snapshots map[domain.Role]snapshotFunc
}

// snapshotFunc computes the role-scoped initial state delivered on join.
// Each role gets exactly the slice of state it is authorized to act on,
// computed fresh on every join so that periodic re-join is equivalent to a
// full resync.
type snapshotFunc func(ctx context.Context, room domain.Room) (event.Event, error)

func NewSessionService(
	log *slog.Logger,
	rooms repositories.IRoomRepository,
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	registry *runtime.Registry,
	dispatcher *runtime.Dispatcher,
	index *search.MessageIndex,
) *SessionService {
	s := &SessionService{
		rooms:      rooms,
		users:      users,
		messages:   messages,
		registry:   registry,
		dispatcher: dispatcher,
		index:      index,
		log:        log,
	}
	s.snapshots = map[domain.Role]snapshotFunc{
		domain.RoleParticipant: s.participantSnapshot,
		domain.RoleAdmin:       s.adminSnapshot,
		domain.RoleBroadcast:   s.broadcastSnapshot,
		domain.RoleSuperAdmin:  s.superAdminSnapshot,
	}
	return s
}

// Join binds the connection to the room and replies with the role-scoped
// snapshot. An unknown code yields exactly one room_deleted to the caller
// and no state mutation; this is the only way a stale client learns its
// room no longer exists.
func (s *SessionService) Join(ctx context.Context, conn runtime.ConnID,
	sink contract.EventSink, cmd JoinCommand) error {
	code := domain.NormalizeCode(cmd.RoomCode)
	if code == "" {
		return nil
	}

	room, err := s.rooms.FindByCode(code)
	if err == apperrors.ErrRoomNotFound {
		// The caller is not registered anywhere; the notice goes straight to
		// its sink and nothing else happens.
		if err := sink.Consume(ctx, event.RoomDeleted{}); err != nil {
			s.log.Debug("join: room_deleted notice lost", "conn", conn, "error", err)
		}
		return nil
	}
	if err != nil {
		s.log.Error("join: room lookup failed", "room", code, "error", err)
		return err
	}

	s.registry.Bind(runtime.Binding{
		Conn:     conn,
		Sink:     sink,
		RoomCode: code,
		Role:     cmd.Role,
		UserID:   cmd.UserID,
	})
	if cmd.Role == domain.RoleBroadcast {
		s.registry.JoinBroadcast(conn, code)
	}

	// Re-join doubles as the presence heartbeat.
	if cmd.UserID != uuid.Nil {
		if err := s.users.SetPresence(cmd.UserID, true); err != nil {
			s.log.Error("join: presence update failed", "user", cmd.UserID, "error", err)
			return err
		}
	}

	snapshot, ok := s.snapshots[cmd.Role]
	if !ok {
		return nil
	}
	e, err := snapshot(ctx, room)
	if err != nil {
		s.log.Error("join: snapshot failed", "room", code, "role", cmd.Role, "error", err)
		return err
	}
	s.dispatcher.ToConn(ctx, conn, e)
	return nil
}

// SendMessage creates a pending message and fans it out twice: the whole
// room sees it immediately as receive_message (senders see their own pending
// text right away) and admins act on the new_pending_message notification.
func (s *SessionService) SendMessage(ctx context.Context, cmd SendMessageCommand) error {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return nil
	}

	room, err := s.rooms.FindByCode(cmd.RoomCode)
	if err == apperrors.ErrRoomNotFound {
		return nil
	}
	if err != nil {
		s.log.Error("send: room lookup failed", "room", cmd.RoomCode, "error", err)
		return err
	}

	// Sender is resolved before the write so a failure here leaves nothing
	// behind.
	sender, err := s.users.FindByID(cmd.UserID)
	if err != nil {
		s.log.Error("send: sender lookup failed", "user", cmd.UserID, "error", err)
		return err
	}

	message := domain.Message{
		ID:        uuid.New(),
		RoomID:    room.ID,
		SenderID:  cmd.UserID,
		Content:   content,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(message); err != nil {
		s.log.Error("send: store failed", "message", message.ID, "error", err)
		return err
	}

	populated := populate(message, sender.Username, room)
	s.dispatcher.ToRoom(ctx, room.Code, event.ReceiveMessage{PopulatedMessage: populated})
	s.dispatcher.ToRoom(ctx, room.Code, event.NewPendingMessage{PopulatedMessage: populated})
	return nil
}

// ApproveMessage transitions pending -> approved and announces the message
// on the broadcast subgroup. The status write is an unconditional set, so a
// second approval re-applies the terminal state and re-emits; the receiving
// UI deduplicates by message id. Unknown ids are a silent no-op.
func (s *SessionService) ApproveMessage(ctx context.Context, messageID uuid.UUID) error {
	message, err := s.messages.FindByID(messageID)
	if err == apperrors.ErrMessageNotFound {
		return apperrors.ErrMessageNotFound
	}
	if err != nil {
		s.log.Error("approve message: lookup failed", "message", messageID, "error", err)
		return err
	}

	if err := s.messages.SetStatus(messageID, domain.StatusApproved); err != nil {
		s.log.Error("approve message: status update failed", "message", messageID, "error", err)
		return err
	}
	message.Status = domain.StatusApproved

	room, err := s.rooms.FindByID(message.RoomID)
	if err != nil {
		s.log.Error("approve message: room lookup failed", "room", message.RoomID, "error", err)
		return err
	}
	sender, err := s.users.FindByID(message.SenderID)
	if err != nil {
		s.log.Error("approve message: sender lookup failed", "user", message.SenderID, "error", err)
		return err
	}

	if err := s.index.Index(message, sender.Username, room.Code); err != nil {
		// The index is derived state; a failed upsert must not block the
		// broadcast.
		s.log.Warn("approve message: index update failed", "message", messageID, "error", err)
	}

	s.dispatcher.ToBroadcast(ctx, room.Code,
		event.BroadcastMessage{PopulatedMessage: populate(message, sender.Username, room)})
	return nil
}

// ApproveUser admits a pending participant. The notification goes to that
// user's connection only; broadcasting it room-wide would leak one user's
// approval to every other pending user.
func (s *SessionService) ApproveUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.users.FindByID(userID); err != nil {
		if err != apperrors.ErrUserNotFound {
			s.log.Error("approve user: lookup failed", "user", userID, "error", err)
		}
		return err
	}
	if err := s.users.SetStatus(userID, domain.StatusApproved); err != nil {
		s.log.Error("approve user: status update failed", "user", userID, "error", err)
		return err
	}
	s.dispatcher.ToUser(ctx, userID, event.UserApproved{UserID: userID})
	return nil
}

// KickUser removes a participant from the room. Presence is cleared
// unconditionally; a kicked user is offline even if no live connection was
// bound. Its connection, if any, receives one terminal kicked_from_room and
// is unbound so no further room events reach it even while the socket stays
// open.
func (s *SessionService) KickUser(ctx context.Context, cmd KickCommand) error {
	user, err := s.users.FindByID(cmd.UserID)
	if err == apperrors.ErrUserNotFound {
		s.log.Warn("kick: unknown user", "user", cmd.UserID)
		return err
	}
	if err != nil {
		s.log.Error("kick: lookup failed", "user", cmd.UserID, "error", err)
		return err
	}

	if conn, ok := s.registry.ConnByUser(cmd.UserID); ok {
		s.dispatcher.ToConn(ctx, conn, event.KickedFromRoom{Message: kickNotice})
		s.registry.Unbind(conn)
	}
	s.registry.UnbindUser(cmd.UserID)

	if err := s.users.SetPresence(cmd.UserID, false); err != nil {
		s.log.Error("kick: presence update failed", "user", cmd.UserID, "error", err)
		return err
	}

	roomCode := domain.NormalizeCode(cmd.RoomCode)
	if roomCode == "" {
		if room, err := s.rooms.FindByID(user.RoomID); err == nil {
			roomCode = room.Code
		}
	}
	if roomCode != "" {
		s.refreshLiveUsers(ctx, user.RoomID, roomCode)
	}
	return nil
}

// DeleteRoom cascades: users, messages (purging the search index), then the
// room itself, before a teardown notice hits the main group and the
// broadcast subgroup. If the room lookup fails nothing is mutated. The
// cascade itself is not transactional; a crash mid-way can orphan entities.
func (s *SessionService) DeleteRoom(ctx context.Context, roomCode string) error {
	code := domain.NormalizeCode(roomCode)
	if code == "" {
		return nil
	}
	room, err := s.rooms.FindByCode(code)
	if err == apperrors.ErrRoomNotFound {
		return nil
	}
	if err != nil {
		s.log.Error("delete room: lookup failed", "room", code, "error", err)
		return err
	}

	if err := s.users.DeleteByRoom(room.ID); err != nil {
		s.log.Error("delete room: user cascade failed", "room", code, "error", err)
		return err
	}
	deleted, err := s.messages.DeleteByRoom(room.ID)
	if err != nil {
		s.log.Error("delete room: message cascade failed", "room", code, "error", err)
		return err
	}
	for _, id := range deleted {
		if err := s.index.Remove(id); err != nil {
			s.log.Warn("delete room: index purge failed", "message", id, "error", err)
		}
	}
	if err := s.rooms.Delete(room.ID); err != nil {
		s.log.Error("delete room: delete failed", "room", code, "error", err)
		return err
	}

	s.dispatcher.ToRoom(ctx, code, event.RoomDeleted{})
	s.dispatcher.ToBroadcast(ctx, code, event.RoomDeleted{})
	s.registry.DropRoom(code)
	s.log.Info("room deleted", "room", code)
	return nil
}

// Disconnect runs the transport-level cleanup for a closed connection. A
// connection with no bound user triggers no persistence mutation.
func (s *SessionService) Disconnect(ctx context.Context, conn runtime.ConnID) error {
	binding, ok := s.registry.Unbind(conn)
	if !ok || binding.UserID == uuid.Nil {
		return nil
	}

	if err := s.users.SetPresence(binding.UserID, false); err != nil {
		if err == apperrors.ErrUserNotFound {
			// The user was deleted while connected (room teardown); nothing
			// left to clean.
			return nil
		}
		s.log.Error("disconnect: presence update failed", "user", binding.UserID, "error", err)
		return err
	}

	if binding.RoomCode != "" {
		user, err := s.users.FindByID(binding.UserID)
		if err != nil {
			return nil
		}
		s.refreshLiveUsers(ctx, user.RoomID, binding.RoomCode)
	}
	return nil
}

// refreshLiveUsers recomputes the online+approved list and pushes it to the
// room, keeping super-admin views consistent after presence changes.
func (s *SessionService) refreshLiveUsers(ctx context.Context, roomID uuid.UUID, roomCode string) {
	users, err := s.users.ListByRoom(roomID)
	if err != nil {
		s.log.Error("live users refresh failed", "room", roomCode, "error", err)
		return
	}
	s.dispatcher.ToRoom(ctx, roomCode, toLiveUsers(users))
}

func (s *SessionService) participantSnapshot(_ context.Context, room domain.Room) (event.Event, error) {
	messages, err := s.approvedPopulated(room)
	if err != nil {
		return nil, err
	}
	return event.LoadMessages(messages), nil
}

func (s *SessionService) adminSnapshot(_ context.Context, room domain.Room) (event.Event, error) {
	pending, err := s.populatedByStatus(room, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	return event.LoadPendingMessages(pending), nil
}

func (s *SessionService) broadcastSnapshot(_ context.Context, room domain.Room) (event.Event, error) {
	messages, err := s.approvedPopulated(room)
	if err != nil {
		return nil, err
	}
	return event.LoadBroadcastMessages(messages), nil
}

func (s *SessionService) superAdminSnapshot(_ context.Context, room domain.Room) (event.Event, error) {
	users, err := s.users.ListByRoom(room.ID)
	if err != nil {
		return nil, err
	}
	return toLiveUsers(users), nil
}

func (s *SessionService) approvedPopulated(room domain.Room) ([]event.PopulatedMessage, error) {
	return s.populatedByStatus(room, domain.StatusApproved)
}

func (s *SessionService) populatedByStatus(room domain.Room, status domain.Status) ([]event.PopulatedMessage, error) {
	messages, err := s.messages.ListByRoom(room.ID, lo.ToPtr(status))
	if err != nil {
		return nil, err
	}
	populated := make([]event.PopulatedMessage, 0, len(messages))
	for _, message := range messages {
		username := ""
		if sender, err := s.users.FindByID(message.SenderID); err == nil {
			username = sender.Username
		}
		populated = append(populated, populate(message, username, room))
	}
	return populated, nil
}

func toLiveUsers(users []domain.User) event.SuperadminLiveUsers {
	online := lo.Filter(users, func(u domain.User, _ int) bool {
		return u.IsOnline && u.Status == domain.StatusApproved
	})
	return lo.Map(online, func(u domain.User, _ int) event.LiveUser {
		return event.LiveUser{
			ID:       u.ID,
			Username: u.Username,
			Role:     u.Role,
			IsOnline: u.IsOnline,
		}
	})
}

func populate(message domain.Message, senderUsername string, room domain.Room) event.PopulatedMessage {
	return event.PopulatedMessage{
		ID:        message.ID,
		Content:   message.Content,
		Status:    message.Status,
		CreatedAt: message.CreatedAt,
		Sender: event.Sender{
			ID:       message.SenderID,
			Username: senderUsername,
		},
		Room: event.RoomRef{
			ID:   room.ID,
			Code: room.Code,
		},
	}
}
