package runtime

import (
	"sync"

	"github.com/google/uuid"

	"cloud-connect/contract"
	"cloud-connect/domain"
)

type ConnID string

type Set map[ConnID]struct{}

// Binding ties a live connection to its room, role, and optional user
// identity. A connection belongs to at most one room at a time; re-joining
// overwrites the binding, it does not add a second membership.
type Binding struct {
	Conn     ConnID
	Sink     contract.EventSink
	RoomCode string
	Role     domain.Role
	UserID   uuid.UUID // uuid.Nil for anonymous viewers
}

// Registry is the in-memory connection directory. It replaces the persisted
// socket-id field of the original model: bindings are keyed by connection
// handle and by user id, and their lifecycle is tied one-to-one to
// connection open/close, so nothing goes stale across process restarts.
type Registry struct {
	mu               sync.RWMutex
	bindings         map[ConnID]Binding
	byUser           map[uuid.UUID]ConnID
	roomMembers      map[string]Set // room code -> connections
	broadcastMembers map[string]Set // room code -> broadcast-only subgroup
}

func NewRegistry() *Registry {
	return &Registry{
		bindings:         make(map[ConnID]Binding),
		byUser:           make(map[uuid.UUID]ConnID),
		roomMembers:      make(map[string]Set),
		broadcastMembers: make(map[string]Set),
	}
}

// Bind registers a connection into its room group. If the connection was
// already bound to another room, the old membership is dropped first.
func (r *Registry) Bind(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bindings[b.Conn]; ok {
		r.removeFromGroups(prev)
	}
	r.bindings[b.Conn] = b

	if _, ok := r.roomMembers[b.RoomCode]; !ok {
		r.roomMembers[b.RoomCode] = make(Set)
	}
	r.roomMembers[b.RoomCode][b.Conn] = struct{}{}

	if b.UserID != uuid.Nil {
		r.byUser[b.UserID] = b.Conn
	}
}

// JoinBroadcast additionally places the connection into the room's
// broadcast-only subgroup so moderation events can be split from raw join
// traffic.
func (r *Registry) JoinBroadcast(conn ConnID, roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.broadcastMembers[roomCode]; !ok {
		r.broadcastMembers[roomCode] = make(Set)
	}
	r.broadcastMembers[roomCode][conn] = struct{}{}
}

// Unbind removes a connection from the registry and its groups. It returns
// the removed binding so the caller can run presence cleanup for a bound
// user. The user index entry is dropped only if it still points at this
// connection; a newer connection of the same user keeps its entry.
func (r *Registry) Unbind(conn ConnID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[conn]
	if !ok {
		return Binding{}, false
	}
	delete(r.bindings, conn)
	r.removeFromGroups(b)

	if b.UserID != uuid.Nil && r.byUser[b.UserID] == conn {
		delete(r.byUser, b.UserID)
	}
	return b, true
}

// UnbindUser drops the user -> connection index entry, the in-memory
// equivalent of clearing a stored socket id.
func (r *Registry) UnbindUser(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUser, userID)
}

// ConnByUser resolves a user's current connection for directed delivery.
func (r *Registry) ConnByUser(userID uuid.UUID) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

func (r *Registry) SinkFor(conn ConnID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[conn]
	if !ok {
		return nil, false
	}
	return b.Sink, true
}

// SinksForRoom retrieves all active sinks of a room's main group.
// Returns nil if the room has no live members.
func (r *Registry) SinksForRoom(roomCode string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.roomMembers[roomCode])
}

// SinksForBroadcast retrieves the broadcast-only subgroup of a room.
func (r *Registry) SinksForBroadcast(roomCode string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.broadcastMembers[roomCode])
}

// DropRoom forgets a room's groups after teardown. Individual bindings stay
// until each connection closes; their events can no longer reach the room.
func (r *Registry) DropRoom(roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roomMembers, roomCode)
	delete(r.broadcastMembers, roomCode)
}

// Stats reports live connection and room counts for monitoring.
func (r *Registry) Stats() (connections, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings), len(r.roomMembers)
}

func (r *Registry) collect(members Set) []contract.EventSink {
	var sinks []contract.EventSink
	for conn := range members {
		if b, ok := r.bindings[conn]; ok {
			sinks = append(sinks, b.Sink)
		}
	}
	return sinks
}

// removeFromGroups must be called with the lock held. Empty sets are removed
// entirely to prevent memory leaks over time.
func (r *Registry) removeFromGroups(b Binding) {
	if members, ok := r.roomMembers[b.RoomCode]; ok {
		delete(members, b.Conn)
		if len(members) == 0 {
			delete(r.roomMembers, b.RoomCode)
		}
	}
	if members, ok := r.broadcastMembers[b.RoomCode]; ok {
		delete(members, b.Conn)
		if len(members) == 0 {
			delete(r.broadcastMembers, b.RoomCode)
		}
	}
}
