package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"cloud-connect/domain"
	"cloud-connect/domain/event"
	"cloud-connect/observability"
	"cloud-connect/repositories"
	"cloud-connect/runtime"
	"cloud-connect/search"
	"cloud-connect/services"
)

// recordSink collects delivered events per connection so the scenario can be
// replayed against what each role actually saw.
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

type stack struct {
	session *services.SessionService
	admin   *services.AdminService
}

func newStack(t *testing.T) stack {
	t.Helper()
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	index, err := search.NewMessageIndex(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	rooms := repositories.NewRoomRepository(db)
	users := repositories.NewUserRepository(db)
	messages := repositories.NewMessageRepository(db)
	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(log, registry, observability.NewManager(), time.Second)

	return stack{
		session: services.NewSessionService(log, rooms, users, messages, registry, dispatcher, index),
		admin:   services.NewAdminService(log, rooms, users, messages, index),
	}
}

func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	s := newStack(t)

	// 1. Room DEMO is created over the admin surface
	room, err := s.admin.CreateRoom("Launch day", "demo")
	req.NoError(err)
	req.Equal("DEMO", room.Code)

	// 2. A participant requests to join and lands pending
	_, u1, err := s.admin.JoinRoom("DEMO", "u1")
	req.NoError(err)
	req.Equal(domain.StatusPending, u1.Status)

	u1Sink := &recordSink{}
	req.NoError(s.session.Join(ctx, "c-u1", u1Sink, services.JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: u1.ID,
	}))
	req.Equal([]string{"load_messages"}, u1Sink.names())
	req.Empty(u1Sink.events[0].(event.LoadMessages))

	// 3. An admin and the broadcast screen come online
	adminSink := &recordSink{}
	req.NoError(s.session.Join(ctx, "c-admin", adminSink, services.JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleAdmin,
	}))
	screenSink := &recordSink{}
	req.NoError(s.session.Join(ctx, "c-screen", screenSink, services.JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleBroadcast,
	}))
	req.Equal([]string{"load_broadcast_messages"}, screenSink.names())

	// 4. The admin approves u1, who is notified directly
	u1Sink.events = nil
	req.NoError(s.session.ApproveUser(ctx, u1.ID))
	req.Equal([]string{"user_approved"}, u1Sink.names())

	// 5. u1 sends "hi"; the whole room sees the pending submission
	u1Sink.events = nil
	adminSink.events = nil
	screenSink.events = nil
	req.NoError(s.session.SendMessage(ctx, services.SendMessageCommand{
		UserID: u1.ID, RoomCode: "DEMO", Content: "hi",
	}))
	req.Equal([]string{"receive_message", "new_pending_message"}, adminSink.names())
	submitted := adminSink.events[0].(event.ReceiveMessage)
	req.Equal("hi", submitted.Content)
	req.Equal(domain.StatusPending, submitted.Status)

	// 6. The admin approves the message; only the broadcast subgroup hears it
	u1Sink.events = nil
	adminSink.events = nil
	screenSink.events = nil
	req.NoError(s.session.ApproveMessage(ctx, submitted.ID))
	req.Empty(u1Sink.events)
	req.Empty(adminSink.events)
	req.Equal([]string{"broadcast_message"}, screenSink.names())
	announced := screenSink.events[0].(event.BroadcastMessage)

	// Content and sender are identical across receive and broadcast
	req.Equal(submitted.ID, announced.ID)
	req.Equal(submitted.Content, announced.Content)
	req.Equal(submitted.Sender, announced.Sender)
	req.Equal(domain.StatusApproved, announced.Status)

	// 7. A late broadcast join replays the approved message in its snapshot
	lateScreen := &recordSink{}
	req.NoError(s.session.Join(ctx, "c-late", lateScreen, services.JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleBroadcast,
	}))
	snapshot := lateScreen.events[0].(event.LoadBroadcastMessages)
	req.Len(snapshot, 1)
	req.Equal("hi", snapshot[0].Content)

	// 8. The approved message is findable over the search surface
	hits, err := s.admin.SearchMessages(ctx, "DEMO", "hi", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(submitted.ID, hits[0].ID)

	// 9. The super admin tears the room down; everyone is told once per group
	u1Sink.events = nil
	req.NoError(s.session.DeleteRoom(ctx, "DEMO"))
	req.Equal([]string{"room_deleted"}, u1Sink.names())

	// 10. A rejoin now behaves exactly like joining an unknown room
	ghost := &recordSink{}
	req.NoError(s.session.Join(ctx, "c-ghost", ghost, services.JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: u1.ID,
	}))
	req.Equal([]string{"room_deleted"}, ghost.names())
}

func Test_Kick_Removes_User_From_Live_Session(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	s := newStack(t)

	_, err := s.admin.CreateRoom("Launch day", "DEMO")
	req.NoError(err)
	_, troll, err := s.admin.JoinRoom("DEMO", "troll")
	req.NoError(err)
	req.NoError(s.session.ApproveUser(ctx, troll.ID))

	trollSink := &recordSink{}
	req.NoError(s.session.Join(ctx, "c-troll", trollSink, services.JoinCommand{
		RoomCode: "DEMO", Role: domain.RoleParticipant, UserID: troll.ID,
	}))
	trollSink.events = nil

	req.NoError(s.session.KickUser(ctx, services.KickCommand{
		UserID: troll.ID, RoomCode: "DEMO",
	}))

	req.Equal([]string{"kicked_from_room"}, trollSink.names())
	req.Equal("You were removed by Super Admin",
		trollSink.events[0].(event.KickedFromRoom).Message)

	// The kicked connection is cut off from further room traffic
	trollSink.events = nil
	req.NoError(s.session.DeleteRoom(ctx, "DEMO"))
	req.Empty(trollSink.events)
}

func Test_Listing_Users_By_Moderation_State(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	s := newStack(t)

	_, err := s.admin.CreateRoom("Launch day", "DEMO")
	req.NoError(err)
	_, approved, err := s.admin.JoinRoom("DEMO", "alice")
	req.NoError(err)
	_, _, err = s.admin.JoinRoom("DEMO", "bob")
	req.NoError(err)
	req.NoError(s.session.ApproveUser(ctx, approved.ID))

	pending, err := s.admin.ListUsers("DEMO", lo.ToPtr(domain.StatusPending))
	req.NoError(err)
	req.Len(pending, 1)
	req.Equal("bob", pending[0].Username)

	all, err := s.admin.ListUsers("DEMO", nil)
	req.NoError(err)
	req.Len(all, 2)
}
