package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"cloud-connect/domain"
)

func newTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	index, err := NewMessageIndex(t.TempDir(), logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func approvedMessage(content string) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		RoomID:    uuid.New(),
		SenderID:  uuid.New(),
		Content:   content,
		Status:    domain.StatusApproved,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSearch_Scopes_Hits_To_The_Room(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	demo := approvedMessage("deployment went smoothly")
	req.NoError(index.Index(demo, "alice", "DEMO"))
	req.NoError(index.Index(approvedMessage("deployment rolled back"), "bob", "OTHER"))

	hits, err := index.Search(context.Background(), "demo", "deployment", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(demo.ID, hits[0].ID)
	req.Equal("deployment went smoothly", hits[0].Content)
	req.Equal("alice", hits[0].Sender)
}

func TestSearch_No_Match_Returns_Empty(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	req.NoError(index.Index(approvedMessage("hello there"), "alice", "DEMO"))

	hits, err := index.Search(context.Background(), "DEMO", "zebra", 10)
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Reapproval_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	message := approvedMessage("same text twice")

	req.NoError(index.Index(message, "alice", "DEMO"))
	req.NoError(index.Index(message, "alice", "DEMO"))

	hits, err := index.Search(context.Background(), "DEMO", "twice", 10)
	req.NoError(err)
	req.Len(hits, 1)
}

func TestRemove_Purges_The_Document(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	message := approvedMessage("to be removed")
	req.NoError(index.Index(message, "alice", "DEMO"))

	req.NoError(index.Remove(message.ID))

	hits, err := index.Search(context.Background(), "DEMO", "removed", 10)
	req.NoError(err)
	req.Empty(hits)
}
