package cache

import (
	"context"
	"sync"
	"time"
)

// SnapshotCache holds rendered PNGs of a room's visible canvas. Entries expire
// on their own; a miss is not an error.
type SnapshotCache interface {
	PutSnapshot(ctx context.Context, roomId string, png []byte) error
	GetSnapshot(ctx context.Context, roomId string) ([]byte, bool, error)
}

type snapshotEntry struct {
	png     []byte
	expires time.Time
}

type MemorySnapshotCache struct {
	mu      sync.Mutex
	entries map[string]snapshotEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySnapshotCache(ttl time.Duration) *MemorySnapshotCache {
	return &MemorySnapshotCache{
		entries: make(map[string]snapshotEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemorySnapshotCache) PutSnapshot(ctx context.Context, roomId string, png []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[roomId] = snapshotEntry{png: png, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemorySnapshotCache) GetSnapshot(ctx context.Context, roomId string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[roomId]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, roomId)
		return nil, false, nil
	}
	return entry.png, true, nil
}
