package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/worker"
)

func move(x float64, drawing bool) models.CursorUpdate {
	return models.CursorUpdate{RoomId: "room1", UserId: "alice", X: x, Y: x, IsDrawing: drawing}
}

func TestCursorThrottle_CoalescesMoves(t *testing.T) {
	th := worker.NewCursorThrottle(100*time.Millisecond, nil)
	t0 := time.Unix(1000, 0)

	u, ok := th.Offer(move(1, false), t0)
	assert.True(t, ok, "first update goes straight out")
	assert.Equal(t, move(1, false), u)

	_, ok = th.Offer(move(2, false), t0.Add(10*time.Millisecond))
	assert.False(t, ok)
	_, ok = th.Offer(move(3, false), t0.Add(20*time.Millisecond))
	assert.False(t, ok)

	_, ok = th.Due(t0.Add(50 * time.Millisecond))
	assert.False(t, ok, "interval not yet elapsed")

	u, ok = th.Due(t0.Add(100 * time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, move(3, false), u, "latest move wins")

	_, ok = th.Due(t0.Add(300 * time.Millisecond))
	assert.False(t, ok, "nothing left to send")
}

func TestCursorThrottle_DrawingChangeIsImmediate(t *testing.T) {
	th := worker.NewCursorThrottle(100*time.Millisecond, nil)
	t0 := time.Unix(1000, 0)

	th.Offer(move(1, false), t0)
	_, ok := th.Offer(move(2, false), t0.Add(5*time.Millisecond))
	assert.False(t, ok)

	u, ok := th.Offer(move(3, true), t0.Add(10*time.Millisecond))
	assert.True(t, ok, "pen down skips the throttle")
	assert.Equal(t, move(3, true), u)

	_, ok = th.Due(t0.Add(500 * time.Millisecond))
	assert.False(t, ok, "pending move was superseded")

	u, ok = th.Offer(move(4, false), t0.Add(510*time.Millisecond))
	assert.True(t, ok, "pen up skips the throttle")
	assert.False(t, u.IsDrawing)
}

func TestCursorThrottle_MovesWhileDrawingAreThrottled(t *testing.T) {
	th := worker.NewCursorThrottle(100*time.Millisecond, nil)
	t0 := time.Unix(1000, 0)

	th.Offer(move(1, true), t0)
	_, ok := th.Offer(move(2, true), t0.Add(30*time.Millisecond))
	assert.False(t, ok)

	u, ok := th.Offer(move(3, true), t0.Add(150*time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, move(3, true), u)
}

func TestCursorThrottle_RunFlushesThroughCallback(t *testing.T) {
	flushed := make(chan models.CursorUpdate, 8)
	th := worker.NewCursorThrottle(20*time.Millisecond, func(u models.CursorUpdate) {
		flushed <- u
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go th.Run(ctx)

	th.Push(move(1, false))
	th.Push(move(2, false))
	th.Push(move(3, false))

	var sent []models.CursorUpdate
	for len(sent) == 0 || sent[len(sent)-1] != move(3, false) {
		select {
		case u := <-flushed:
			sent = append(sent, u)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for latest cursor, got %v", sent)
		}
	}

	assert.Equal(t, move(1, false), sent[0])
	assert.LessOrEqual(t, len(sent), 3)
}

// blockingFlush records flushed updates; every flush waits until release is
// closed.
type blockingFlush struct {
	mu      sync.Mutex
	sent    []models.CursorUpdate
	release chan struct{}
}

func (f *blockingFlush) flush(u models.CursorUpdate) {
	<-f.release
	f.mu.Lock()
	f.sent = append(f.sent, u)
	f.mu.Unlock()
}

func (f *blockingFlush) last() (models.CursorUpdate, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return models.CursorUpdate{}, 0
	}
	return f.sent[len(f.sent)-1], len(f.sent)
}

func TestCursorThrottle_SlowFlushKeepsPenUp(t *testing.T) {
	f := &blockingFlush{release: make(chan struct{})}
	th := worker.NewCursorThrottle(time.Hour, f.flush)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go th.Run(ctx)

	for i := 0; i < 80; i++ {
		th.Push(move(float64(i), true))
	}
	th.Push(move(80, false))
	close(f.release)

	assert.Eventually(t, func() bool {
		u, _ := f.last()
		return u == move(80, false)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCursorThrottle_OverflowKeepsFinalState(t *testing.T) {
	f := &blockingFlush{release: make(chan struct{})}
	th := worker.NewCursorThrottle(time.Hour, f.flush)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go th.Run(ctx)

	th.Push(move(0, false))
	// Run is now stuck in the first flush
	assert.Eventually(t, func() bool { return len(th.Pending()) == 0 }, time.Second, time.Millisecond)
	for i := 1; i <= 20; i++ {
		th.Push(move(float64(i), i%2 == 1))
	}
	assert.LessOrEqual(t, len(th.Pending()), 4)
	close(f.release)

	assert.Eventually(t, func() bool {
		u, _ := f.last()
		return u == move(20, false)
	}, 2*time.Second, 5*time.Millisecond)
}
