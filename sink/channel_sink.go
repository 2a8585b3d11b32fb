package sink

import (
	"context"
	"log/slog"

	"cloud-connect/domain/event"
)

// ChannelSink buffers events for one live connection. The transport layer
// owns the channel's consuming side and drains it into the socket.
type ChannelSink struct {
	Events chan event.Event
	log    *slog.Logger
}

func NewChannelSink(log *slog.Logger, bufferSize int) *ChannelSink {
	return &ChannelSink{
		Events: make(chan event.Event, bufferSize),
		log:    log,
	}
}

// Consume is called by the dispatcher. It hands the event to the owning
// connection's channel; when the buffer is full the event is dropped so a
// slow client cannot stall fan-out. Clients recover lost state through the
// periodic re-join resync.
func (s *ChannelSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Debug("sink buffer full, event dropped", "event", e.Name())
		return nil
	}
}
