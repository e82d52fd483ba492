package worker

import (
	"context"
	"sync"
	"time"

	"github.com/zlnvch/canvasync/models"
	"golang.org/x/time/rate"
)

const DefaultCursorInterval = 100 * time.Millisecond

// maxInbox bounds the updates queued behind a slow flush. Consecutive updates
// with the same drawing state collapse into one, so the inbox only grows on
// drawing-state changes.
const maxInbox = 4

// CursorThrottle limits how often one session's cursor reaches the presence
// registry. Moves are coalesced (latest wins) to at most one per interval. A
// change in drawing state skips the wait and replaces any pending move, so
// strokes starting and stopping are never delayed or lost.
type CursorThrottle struct {
	mu    sync.Mutex
	inbox []models.CursorUpdate
	wake  chan struct{}

	flush    func(models.CursorUpdate)
	interval time.Duration
	limiter  *rate.Limiter
	pending  *models.CursorUpdate
	drawing  bool
	started  bool
}

func NewCursorThrottle(interval time.Duration, flush func(models.CursorUpdate)) *CursorThrottle {
	if interval <= 0 {
		interval = DefaultCursorInterval
	}
	return &CursorThrottle{
		wake:     make(chan struct{}, 1),
		flush:    flush,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Push queues an update for Run without blocking. While Run is busy a move
// replaces the previous one of the same drawing state, but never a pen-down or
// pen-up. If the inbox overflows the oldest down/up pair is discarded, which
// leaves the final drawing state unchanged.
func (t *CursorThrottle) Push(update models.CursorUpdate) {
	t.mu.Lock()
	n := len(t.inbox)
	if n > 0 && t.inbox[n-1].IsDrawing == update.IsDrawing {
		t.inbox[n-1] = update
	} else {
		t.inbox = append(t.inbox, update)
	}
	if len(t.inbox) > maxInbox {
		t.inbox = append(t.inbox[:0], t.inbox[2:]...)
	}
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Pending returns a copy of the updates waiting for Run.
func (t *CursorThrottle) Pending() []models.CursorUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.CursorUpdate(nil), t.inbox...)
}

func (t *CursorThrottle) drain() []models.CursorUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	updates := t.inbox
	t.inbox = nil
	return updates
}

// Offer takes an update received at now and returns it if it should be sent
// right away. Otherwise it is held until Due releases it.
func (t *CursorThrottle) Offer(update models.CursorUpdate, now time.Time) (models.CursorUpdate, bool) {
	if !t.started || update.IsDrawing != t.drawing {
		t.started = true
		t.drawing = update.IsDrawing
		t.pending = nil
		t.limiter.AllowN(now, 1)
		return update, true
	}

	if t.limiter.AllowN(now, 1) {
		t.pending = nil
		return update, true
	}
	t.pending = &update
	return models.CursorUpdate{}, false
}

// Due returns the held update once the interval allows it.
func (t *CursorThrottle) Due(now time.Time) (models.CursorUpdate, bool) {
	if t.pending == nil || !t.limiter.AllowN(now, 1) {
		return models.CursorUpdate{}, false
	}
	update := *t.pending
	t.pending = nil
	return update, true
}

// Run owns the throttle state until shutdownCtx is done. A move still held at
// shutdown is dropped.
func (t *CursorThrottle) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(t.interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownCtx.Done():
			return
		case <-t.wake:
			for _, update := range t.drain() {
				if u, ok := t.Offer(update, time.Now()); ok {
					t.flush(u)
				}
			}
		case now := <-ticker.C:
			if u, ok := t.Due(now); ok {
				t.flush(u)
			}
		}
	}
}
