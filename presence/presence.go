package presence

import (
	"context"
	"time"

	"github.com/zlnvch/canvasync/models"
)

// DefaultStaleAfter is how long a record stays visible without a refresh.
const DefaultStaleAfter = 30 * time.Second

// Registry holds one ephemeral record per (room, user). Liveness is decided at
// read time: ListLive never returns a record older than the staleness window,
// whether or not Leave was ever called for it.
type Registry interface {
	Join(ctx context.Context, roomId string, userId string, userName string, userColor string) error
	UpdateCursor(ctx context.Context, update models.CursorUpdate) error
	Leave(ctx context.Context, roomId string, userId string) error
	ListLive(ctx context.Context, roomId string) ([]models.Presence, error)
}

func IsLive(p models.Presence, now time.Time, staleAfter time.Duration) bool {
	return now.Sub(p.LastSeen) < staleAfter
}
