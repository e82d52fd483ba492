package hub

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/canvasync/models"
)

type EventType string

const (
	EventReplay           EventType = "replay"
	EventOperationAdded   EventType = "operation_added"
	EventOperationChanged EventType = "operation_changed"
	EventPresence         EventType = "presence"
)

// Event is what a room pushes to its sessions. Only the fields for Type are set.
type Event struct {
	Type       EventType
	RoomId     string
	Operation  models.Operation
	Operations []models.Operation
	Presence   []models.Presence
}

// Sink is where a session's events go. Deliver must not block; returning false
// means the sink has fallen behind and the session is dropped from its room.
type Sink interface {
	Deliver(e Event) bool
}

var ErrSinkFull = errors.New("session sink rejected replay")

// Session is one connection's membership in one room.
type Session struct {
	Id     string
	RoomId string
	User   models.User
	sink   Sink
}

func NewSession(roomId string, user models.User, sink Sink) (*Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &Session{Id: id.String(), RoomId: roomId, User: user, sink: sink}, nil
}

type room struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// Hub fans out room events. Every mutation of a room runs under that room's
// lock together with the enqueueing of its event, so all sessions of a room see
// events in one order, and a joining session sees either an operation in its
// replay or as a later event, never both and never neither.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// lock returns roomId's room with its lock held, creating it if needed.
func (h *Hub) lock(roomId string) *room {
	for {
		h.mu.Lock()
		r, ok := h.rooms[roomId]
		if !ok {
			r = &room{sessions: make(map[*Session]struct{})}
			h.rooms[roomId] = r
		}
		h.mu.Unlock()

		r.mu.Lock()
		if !r.closed {
			return r
		}
		// Lost a race with the room being torn down
		r.mu.Unlock()
	}
}

// unlock releases r, removing it from the hub first if nobody is left in it.
func (h *Hub) unlock(roomId string, r *room) {
	if len(r.sessions) == 0 {
		r.closed = true
		h.mu.Lock()
		if h.rooms[roomId] == r {
			delete(h.rooms, roomId)
		}
		h.mu.Unlock()
	}
	r.mu.Unlock()
}

// Subscribe registers s after handing it the replay produced by load. Nothing
// can be broadcast to the room between the two.
func (h *Hub) Subscribe(s *Session, load func() ([]models.Operation, error)) error {
	r := h.lock(s.RoomId)
	defer h.unlock(s.RoomId, r)

	ops, err := load()
	if err != nil {
		return err
	}
	if !s.sink.Deliver(Event{Type: EventReplay, RoomId: s.RoomId, Operations: ops}) {
		return ErrSinkFull
	}
	r.sessions[s] = struct{}{}
	return nil
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(s *Session) {
	r := h.lock(s.RoomId)
	delete(r.sessions, s)
	h.unlock(s.RoomId, r)
}

// Append runs commit and sends the committed operation to every session in the
// room except origin, which learns its result from the return value. A nil
// origin reaches everyone.
func (h *Hub) Append(roomId string, origin *Session, commit func() (models.Operation, error)) (models.Operation, error) {
	r := h.lock(roomId)
	defer h.unlock(roomId, r)

	op, err := commit()
	if err != nil {
		return models.Operation{}, err
	}
	h.broadcast(r, Event{Type: EventOperationAdded, RoomId: roomId, Operation: op}, origin)
	return op, nil
}

// Change runs mutate and, if it reports a change, sends the operation to every
// session in the room including the one that asked for it.
func (h *Hub) Change(roomId string, mutate func() (models.Operation, bool, error)) (models.Operation, bool, error) {
	r := h.lock(roomId)
	defer h.unlock(roomId, r)

	op, changed, err := mutate()
	if err != nil || !changed {
		return op, changed, err
	}
	h.broadcast(r, Event{Type: EventOperationChanged, RoomId: roomId, Operation: op}, nil)
	return op, true, nil
}

// Presence sends the list produced by list to every session in the room. The
// listing happens under the room lock so snapshots never arrive out of order.
func (h *Hub) Presence(roomId string, list func() ([]models.Presence, error)) error {
	r := h.lock(roomId)
	defer h.unlock(roomId, r)

	if len(r.sessions) == 0 {
		return nil
	}
	users, err := list()
	if err != nil {
		return err
	}
	h.broadcast(r, Event{Type: EventPresence, RoomId: roomId, Presence: users}, nil)
	return nil
}

// SessionCount reports how many sessions are subscribed to roomId.
func (h *Hub) SessionCount(roomId string) int {
	h.mu.Lock()
	r, ok := h.rooms[roomId]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (h *Hub) broadcast(r *room, e Event, except *Session) {
	for s := range r.sessions {
		if s == except {
			continue
		}
		if !s.sink.Deliver(e) {
			slog.Warn("Dropping slow session", "roomId", s.RoomId, "sessionId", s.Id, "userId", s.User.Id)
			delete(r.sessions, s)
		}
	}
}
