// Package search maintains a full-text index of approved messages. Pending
// messages are never indexed; a message enters the index on approval and
// leaves it when it is deleted or its room is torn down.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"cloud-connect/domain"
)

type Hit struct {
	ID      uuid.UUID `json:"id"`
	Content string    `json:"content"`
	Sender  string    `json:"sender"`
	Score   float64   `json:"score"`
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

// Index upserts an approved message. Re-approval of the same id overwrites
// the existing document, which keeps the operation idempotent.
func (i *MessageIndex) Index(message domain.Message, senderUsername, roomCode string) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField("content", message.Content).StoreValue()).
		AddField(bluge.NewKeywordField("room", roomCode)).
		AddField(bluge.NewKeywordField("sender", senderUsername).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", message.CreatedAt))
	return i.writer.Update(doc.ID(), doc)
}

func (i *MessageIndex) Remove(id uuid.UUID) error {
	return i.writer.Delete(bluge.Identifier(id.String()))
}

// Search runs a match query over one room's approved messages.
func (i *MessageIndex) Search(ctx context.Context, roomCode, terms string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(domain.NormalizeCode(roomCode)).SetField("room"))

	start := time.Now()
	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.ID, _ = uuid.Parse(string(value))
			case "content":
				hit.Content = string(value)
			case "sender":
				hit.Sender = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	i.log.Debug("search completed", "room", roomCode, "hits", len(hits), "took", time.Since(start))
	return hits, nil
}
