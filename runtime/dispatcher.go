package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cloud-connect/contract"
	"cloud-connect/domain/event"
	"cloud-connect/observability"
)

// Dispatcher fans events out to a room's main group, its broadcast-only
// subgroup, or a single targeted connection.
//
// It provides best-effort delivery with no guarantees regarding ordering
// across connections, durability, or retries. A slow sink loses the event
// after the delivery timeout rather than stalling the operation that
// triggered the fan-out.
type Dispatcher struct {
	registry        *Registry
	log             *slog.Logger
	monitoring      *observability.Manager
	deliveryTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, registry *Registry,
	monitoring *observability.Manager, deliveryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:        registry,
		log:             log,
		monitoring:      monitoring,
		deliveryTimeout: deliveryTimeout,
	}
}

// ToRoom delivers an event to every live connection in the room's main group.
func (d *Dispatcher) ToRoom(ctx context.Context, roomCode string, e event.Event) {
	d.deliver(ctx, d.registry.SinksForRoom(roomCode), e)
}

// ToBroadcast delivers an event to the room's broadcast-only subgroup.
func (d *Dispatcher) ToBroadcast(ctx context.Context, roomCode string, e event.Event) {
	d.deliver(ctx, d.registry.SinksForBroadcast(roomCode), e)
}

// ToConn delivers an event to a single connection. Unknown connections are
// silently skipped; the caller decided the target from registry state that
// may have expired in between.
func (d *Dispatcher) ToConn(ctx context.Context, conn ConnID, e event.Event) {
	sink, ok := d.registry.SinkFor(conn)
	if !ok {
		return
	}
	d.deliver(ctx, []contract.EventSink{sink}, e)
}

// ToUser delivers an event to the user's current connection only. This
// directed path exists so approval and removal notices never leak to other
// members of the room.
func (d *Dispatcher) ToUser(ctx context.Context, userID uuid.UUID, e event.Event) {
	conn, ok := d.registry.ConnByUser(userID)
	if !ok {
		return
	}
	d.ToConn(ctx, conn, e)
}

func (d *Dispatcher) deliver(ctx context.Context, sinks []contract.EventSink, e event.Event) {
	if len(sinks) == 0 {
		return
	}
	deliveryCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	for _, sink := range sinks {
		if err := sink.Consume(deliveryCtx, e); err != nil {
			d.monitoring.AddDropped(1)
			d.log.Warn("event delivery failed", "event", e.Name(), "error", err)
			continue
		}
		d.monitoring.AddDelivered(1)
	}
}
