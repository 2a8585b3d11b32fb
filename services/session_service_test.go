package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"cloud-connect/domain"
	"cloud-connect/domain/event"
	apperrors "cloud-connect/errors"
	"cloud-connect/observability"
	"cloud-connect/repositories"
	"cloud-connect/runtime"
	"cloud-connect/search"
)

// recordSink collects everything delivered to it so assertions can inspect
// the exact event sequence a connection saw.
type recordSink struct {
	events []event.Event
}

func (r *recordSink) Consume(_ context.Context, e event.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordSink) names() []string {
	return lo.Map(r.events, func(e event.Event, _ int) string { return e.Name() })
}

type sessionFixture struct {
	service  *SessionService
	rooms    *repositories.RoomRepository
	users    *repositories.UserRepository
	messages *repositories.MessageRepository
	registry *runtime.Registry
}

func newSessionFixture(t *testing.T) sessionFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	index, err := search.NewMessageIndex(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(log, registry, observability.NewManager(), time.Second)

	rooms := repositories.NewRoomRepository(db)
	users := repositories.NewUserRepository(db)
	messages := repositories.NewMessageRepository(db)
	return sessionFixture{
		service:  NewSessionService(log, rooms, users, messages, registry, dispatcher, index),
		rooms:    rooms,
		users:    users,
		messages: messages,
		registry: registry,
	}
}

func (f sessionFixture) createRoom(t *testing.T, code string) domain.Room {
	t.Helper()
	room := domain.Room{ID: uuid.New(), Name: code, Code: code}
	require.NoError(t, f.rooms.Create(room))
	room.Code = domain.NormalizeCode(code)
	return room
}

func (f sessionFixture) createUser(t *testing.T, room domain.Room, username string,
	role domain.Role, status domain.Status) domain.User {
	t.Helper()
	user := domain.User{
		ID: uuid.New(), Username: username, RoomID: room.ID, Role: role, Status: status,
	}
	require.NoError(t, f.users.Create(user))
	return user
}

func TestJoin_Unknown_Room_Yields_Single_Room_Deleted(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	sink := &recordSink{}

	// When a client joins a code that never existed
	err := f.service.Join(context.Background(), "c1", sink, JoinCommand{
		RoomCode: "GHOST", Role: domain.RoleParticipant,
	})

	// Then it gets exactly one room_deleted and is not registered anywhere
	req.NoError(err)
	req.Equal([]string{"room_deleted"}, sink.names())
	connections, roomCount := f.registry.Stats()
	req.Zero(connections)
	req.Zero(roomCount)
}

func TestJoin_Participant_Snapshot_Holds_Approved_Only(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	sender := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)
	req.NoError(f.messages.Create(domain.Message{
		ID: uuid.New(), RoomID: room.ID, SenderID: sender.ID,
		Content: "visible", Status: domain.StatusApproved, CreatedAt: time.Now().UTC(),
	}))
	req.NoError(f.messages.Create(domain.Message{
		ID: uuid.New(), RoomID: room.ID, SenderID: sender.ID,
		Content: "held back", Status: domain.StatusPending, CreatedAt: time.Now().UTC(),
	}))

	sink := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c1", sink, JoinCommand{
		RoomCode: "demo", Role: domain.RoleParticipant, UserID: sender.ID,
	}))

	req.Equal([]string{"load_messages"}, sink.names())
	snapshot := sink.events[0].(event.LoadMessages)
	req.Len(snapshot, 1)
	req.Equal("visible", snapshot[0].Content)
	req.Equal("alice", snapshot[0].Sender.Username)
	req.Equal("DEMO", snapshot[0].Room.Code)

	// And joining marked the user online
	stored, err := f.users.FindByID(sender.ID)
	req.NoError(err)
	req.True(stored.IsOnline)
}

func TestJoin_Admin_Snapshot_Holds_Pending_Only(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	sender := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)
	req.NoError(f.messages.Create(domain.Message{
		ID: uuid.New(), RoomID: room.ID, SenderID: sender.ID,
		Content: "queued", Status: domain.StatusPending, CreatedAt: time.Now().UTC(),
	}))

	sink := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c-admin", sink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleAdmin,
	}))

	req.Equal([]string{"load_pending_messages"}, sink.names())
	snapshot := sink.events[0].(event.LoadPendingMessages)
	req.Len(snapshot, 1)
	req.Equal("queued", snapshot[0].Content)
}

func TestSendMessage_Blank_Content_Is_Silent(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	sender := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)
	sink := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c1", sink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: sender.ID,
	}))
	sink.events = nil

	req.NoError(f.service.SendMessage(context.Background(), SendMessageCommand{
		UserID: sender.ID, RoomCode: "DEMO", Content: "   ",
	}))

	// Nothing emitted, nothing stored
	req.Empty(sink.events)
	stored, err := f.messages.ListByRoom(room.ID, nil)
	req.NoError(err)
	req.Empty(stored)
}

func TestSendMessage_Fans_Out_Receive_And_Pending(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	sender := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)

	member := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c1", member, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: sender.ID,
	}))
	member.events = nil

	req.NoError(f.service.SendMessage(context.Background(), SendMessageCommand{
		UserID: sender.ID, RoomCode: "DEMO", Content: "  hi  ",
	}))

	// The room sees the trimmed pending text twice: once as the timeline
	// entry, once as the moderation notification.
	req.Equal([]string{"receive_message", "new_pending_message"}, member.names())
	received := member.events[0].(event.ReceiveMessage)
	req.Equal("hi", received.Content)
	req.Equal(domain.StatusPending, received.Status)
	notified := member.events[1].(event.NewPendingMessage)
	req.Equal(received.ID, notified.ID)

	stored, err := f.messages.ListByRoom(room.ID, lo.ToPtr(domain.StatusPending))
	req.NoError(err)
	req.Len(stored, 1)
}

func TestApproveMessage_Unknown_Id_Emits_Nothing(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	f.createRoom(t, "DEMO")
	member := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c1", member, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant,
	}))
	member.events = nil

	err := f.service.ApproveMessage(context.Background(), uuid.New())

	req.ErrorIs(err, apperrors.ErrMessageNotFound)
	req.Empty(member.events)
}

func TestApproveMessage_Reaches_Broadcast_Subgroup_Only(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	sender := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)

	participant := &recordSink{}
	broadcast := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c1", participant, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: sender.ID,
	}))
	req.NoError(f.service.Join(context.Background(), "c-screen", broadcast, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleBroadcast,
	}))
	req.NoError(f.service.SendMessage(context.Background(), SendMessageCommand{
		UserID: sender.ID, RoomCode: "DEMO", Content: "hi",
	}))
	pending, err := f.messages.ListByRoom(room.ID, lo.ToPtr(domain.StatusPending))
	req.NoError(err)
	req.Len(pending, 1)
	participant.events = nil
	broadcast.events = nil

	req.NoError(f.service.ApproveMessage(context.Background(), pending[0].ID))

	// Only the broadcast subgroup hears the approval
	req.Empty(participant.events)
	req.Equal([]string{"broadcast_message"}, broadcast.names())
	announced := broadcast.events[0].(event.BroadcastMessage)
	req.Equal("hi", announced.Content)
	req.Equal(domain.StatusApproved, announced.Status)
	req.Equal("alice", announced.Sender.Username)

	approved, err := f.messages.ListByRoom(room.ID, lo.ToPtr(domain.StatusApproved))
	req.NoError(err)
	req.Len(approved, 1)
}

func TestApproveUser_Notifies_That_User_Only(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	alice := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusPending)
	bob := f.createUser(t, room, "bob", domain.RoleParticipant, domain.StatusPending)

	aliceSink := &recordSink{}
	bobSink := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c-alice", aliceSink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: alice.ID,
	}))
	req.NoError(f.service.Join(context.Background(), "c-bob", bobSink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: bob.ID,
	}))
	aliceSink.events = nil
	bobSink.events = nil

	req.NoError(f.service.ApproveUser(context.Background(), alice.ID))

	req.Equal([]string{"user_approved"}, aliceSink.names())
	req.Equal(alice.ID, aliceSink.events[0].(event.UserApproved).UserID)
	req.Empty(bobSink.events)

	stored, err := f.users.FindByID(alice.ID)
	req.NoError(err)
	req.Equal(domain.StatusApproved, stored.Status)
}

func TestApproveUser_Unknown_Is_Sentinel(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)

	req.ErrorIs(f.service.ApproveUser(context.Background(), uuid.New()),
		apperrors.ErrUserNotFound)
}

func TestKickUser_Notice_Unbind_And_Presence(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	alice := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)
	bob := f.createUser(t, room, "bob", domain.RoleParticipant, domain.StatusApproved)

	aliceSink := &recordSink{}
	bobSink := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c-alice", aliceSink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: alice.ID,
	}))
	req.NoError(f.service.Join(context.Background(), "c-bob", bobSink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: bob.ID,
	}))
	aliceSink.events = nil
	bobSink.events = nil

	req.NoError(f.service.KickUser(context.Background(), KickCommand{
		UserID: alice.ID, RoomCode: "DEMO",
	}))

	// Alice got the terminal notice and nothing after it
	req.Equal([]string{"kicked_from_room"}, aliceSink.names())
	req.Equal("You were removed by Super Admin",
		aliceSink.events[0].(event.KickedFromRoom).Message)

	// The room saw a fresh live-user list without alice
	req.Equal([]string{"superadmin_live_users"}, bobSink.names())
	live := bobSink.events[0].(event.SuperadminLiveUsers)
	req.Len(live, 1)
	req.Equal("bob", live[0].Username)

	stored, err := f.users.FindByID(alice.ID)
	req.NoError(err)
	req.False(stored.IsOnline)

	// Further room traffic no longer reaches the kicked connection
	aliceSink.events = nil
	req.NoError(f.service.SendMessage(context.Background(), SendMessageCommand{
		UserID: bob.ID, RoomCode: "DEMO", Content: "still here",
	}))
	req.Empty(aliceSink.events)
}

func TestDeleteRoom_Cascades_And_Notifies_Both_Groups(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	alice := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)

	member := &recordSink{}
	screen := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c1", member, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: alice.ID,
	}))
	req.NoError(f.service.Join(context.Background(), "c-screen", screen, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleBroadcast,
	}))
	req.NoError(f.service.SendMessage(context.Background(), SendMessageCommand{
		UserID: alice.ID, RoomCode: "DEMO", Content: "hi",
	}))
	member.events = nil
	screen.events = nil

	req.NoError(f.service.DeleteRoom(context.Background(), "demo"))

	// Teardown hits the main group and the broadcast subgroup; the screen is
	// in both so it hears it twice.
	req.Equal([]string{"room_deleted"}, member.names())
	req.Equal([]string{"room_deleted", "room_deleted"}, screen.names())

	// All room state is gone and the code is free again
	_, err := f.rooms.FindByCode("DEMO")
	req.ErrorIs(err, apperrors.ErrRoomNotFound)
	_, err = f.users.FindByID(alice.ID)
	req.ErrorIs(err, apperrors.ErrUserNotFound)
	remaining, err := f.messages.ListByRoom(room.ID, nil)
	req.NoError(err)
	req.Empty(remaining)

	// And the registry forgot the room's groups
	member.events = nil
	f.service.SendMessage(context.Background(), SendMessageCommand{
		UserID: alice.ID, RoomCode: "DEMO", Content: "into the void",
	})
	req.Empty(member.events)
}

func TestDisconnect_Clears_Presence_And_Refreshes_Room(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	room := f.createRoom(t, "DEMO")
	alice := f.createUser(t, room, "alice", domain.RoleParticipant, domain.StatusApproved)
	bob := f.createUser(t, room, "bob", domain.RoleParticipant, domain.StatusApproved)

	aliceSink := &recordSink{}
	bobSink := &recordSink{}
	req.NoError(f.service.Join(context.Background(), "c-alice", aliceSink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: alice.ID,
	}))
	req.NoError(f.service.Join(context.Background(), "c-bob", bobSink, JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: bob.ID,
	}))
	bobSink.events = nil

	req.NoError(f.service.Disconnect(context.Background(), "c-alice"))

	stored, err := f.users.FindByID(alice.ID)
	req.NoError(err)
	req.False(stored.IsOnline)

	req.Equal([]string{"superadmin_live_users"}, bobSink.names())
	live := bobSink.events[0].(event.SuperadminLiveUsers)
	req.Len(live, 1)
	req.Equal("bob", live[0].Username)

	// Disconnecting an unknown connection is a no-op
	req.NoError(f.service.Disconnect(context.Background(), "never-bound"))
}
