package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/store"
)

type roomLog struct {
	mu      sync.Mutex
	ops     []models.Operation
	lastSeq int64
}

type opRef struct {
	room *roomLog
	pos  int
}

// MemoryOperationStore keeps every room's log in process. Each room has its own
// lock, so appends to different rooms never contend.
type MemoryOperationStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomLog
	index map[string]opRef
	now   func() time.Time
}

func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{
		rooms: make(map[string]*roomLog),
		index: make(map[string]opRef),
		now:   time.Now,
	}
}

func (s *MemoryOperationStore) room(roomId string, create bool) *roomLog {
	s.mu.RLock()
	r, ok := s.rooms[roomId]
	s.mu.RUnlock()
	if ok || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[roomId]; !ok {
		r = &roomLog{}
		s.rooms[roomId] = r
	}
	return r
}

func (s *MemoryOperationStore) Append(ctx context.Context, newOp models.NewOperation) (models.Operation, error) {
	newOp, err := store.Validate(newOp)
	if err != nil {
		return models.Operation{}, err
	}
	id, err := store.NewOperationId()
	if err != nil {
		return models.Operation{}, err
	}

	r := s.room(newOp.RoomId, true)

	r.mu.Lock()
	r.lastSeq++
	op := models.Operation{
		Id:             id,
		RoomId:         newOp.RoomId,
		SequenceNumber: r.lastSeq,
		UserId:         newOp.UserId,
		UserColor:      newOp.UserColor,
		Tool:           newOp.Tool,
		Color:          newOp.Color,
		Width:          newOp.Width,
		Points:         newOp.Points,
		Created:        s.now(),
	}
	r.ops = append(r.ops, op)
	pos := len(r.ops) - 1

	// Indexed while the room lock is held so SetUndone never sees a
	// half-registered operation.
	s.mu.Lock()
	s.index[id] = opRef{room: r, pos: pos}
	s.mu.Unlock()
	r.mu.Unlock()

	return op, nil
}

func (s *MemoryOperationStore) ListActive(ctx context.Context, roomId string) ([]models.Operation, error) {
	r := s.room(roomId, false)
	if r == nil {
		return []models.Operation{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]models.Operation, 0, len(r.ops))
	for _, op := range r.ops {
		if !op.IsUndone {
			active = append(active, op)
		}
	}
	return active, nil
}

func (s *MemoryOperationStore) SetUndone(ctx context.Context, operationId string, undone bool) (models.Operation, error) {
	s.mu.RLock()
	ref, ok := s.index[operationId]
	s.mu.RUnlock()
	if !ok {
		return models.Operation{}, store.ErrNotFound
	}

	ref.room.mu.Lock()
	defer ref.room.mu.Unlock()
	ref.room.ops[ref.pos].IsUndone = undone
	return ref.room.ops[ref.pos], nil
}

func (s *MemoryOperationStore) LatestActive(ctx context.Context, roomId string) (models.Operation, bool, error) {
	return s.latest(roomId, false)
}

func (s *MemoryOperationStore) LatestUndone(ctx context.Context, roomId string) (models.Operation, bool, error) {
	return s.latest(roomId, true)
}

func (s *MemoryOperationStore) latest(roomId string, undone bool) (models.Operation, bool, error) {
	r := s.room(roomId, false)
	if r == nil {
		return models.Operation{}, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.ops) - 1; i >= 0; i-- {
		if r.ops[i].IsUndone == undone {
			return r.ops[i], true, nil
		}
	}
	return models.Operation{}, false, nil
}
