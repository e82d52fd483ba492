package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zlnvch/canvasync/models"
)

// MemoryRegistry keeps presence in process. Stale records are pruned whenever a
// room is listed.
type MemoryRegistry struct {
	mu         sync.Mutex
	rooms      map[string]map[string]models.Presence
	staleAfter time.Duration
	now        func() time.Time
}

func NewMemoryRegistry(staleAfter time.Duration) *MemoryRegistry {
	return NewMemoryRegistryWithClock(staleAfter, time.Now)
}

func NewMemoryRegistryWithClock(staleAfter time.Duration, now func() time.Time) *MemoryRegistry {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &MemoryRegistry{
		rooms:      make(map[string]map[string]models.Presence),
		staleAfter: staleAfter,
		now:        now,
	}
}

func (r *MemoryRegistry) Join(ctx context.Context, roomId string, userId string, userName string, userColor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roomLocked(roomId)[userId] = models.Presence{
		RoomId:    roomId,
		UserId:    userId,
		UserName:  userName,
		UserColor: userColor,
		LastSeen:  r.now(),
	}
	return nil
}

// UpdateCursor refreshes last-seen and the cursor. A user who never joined gets
// a record with no name or color.
func (r *MemoryRegistry) UpdateCursor(ctx context.Context, update models.CursorUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := r.roomLocked(update.RoomId)
	p, ok := users[update.UserId]
	if !ok {
		p = models.Presence{RoomId: update.RoomId, UserId: update.UserId}
	}
	p.CursorX = update.X
	p.CursorY = update.Y
	p.IsDrawing = update.IsDrawing
	p.LastSeen = r.now()
	users[update.UserId] = p
	return nil
}

func (r *MemoryRegistry) Leave(ctx context.Context, roomId string, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.rooms[roomId]
	if !ok {
		return nil
	}
	delete(users, userId)
	if len(users) == 0 {
		delete(r.rooms, roomId)
	}
	return nil
}

func (r *MemoryRegistry) ListLive(ctx context.Context, roomId string) ([]models.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	users := r.rooms[roomId]
	live := make([]models.Presence, 0, len(users))
	for userId, p := range users {
		if !IsLive(p, now, r.staleAfter) {
			delete(users, userId)
			continue
		}
		live = append(live, p)
	}
	if len(users) == 0 {
		delete(r.rooms, roomId)
	}

	sort.Slice(live, func(i, j int) bool { return live[i].UserId < live[j].UserId })
	return live, nil
}

func (r *MemoryRegistry) roomLocked(roomId string) map[string]models.Presence {
	users, ok := r.rooms[roomId]
	if !ok {
		users = make(map[string]models.Presence)
		r.rooms[roomId] = users
	}
	return users
}
