package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zlnvch/canvasync/cache"
	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/mq/memmq"
	"github.com/zlnvch/canvasync/presence"
	"github.com/zlnvch/canvasync/service"
	"github.com/zlnvch/canvasync/store/memory"
)

// Helper to setup the service on in-memory backends
func setupService(t *testing.T) (*service.Service, *memory.MemoryOperationStore, *memmq.MemoryMessageQueue) {
	opStore := memory.NewMemoryOperationStore()
	queue := memmq.NewMemoryMessageQueue()
	svc := service.NewService(
		opStore,
		presence.NewMemoryRegistry(presence.DefaultStaleAfter),
		hub.NewHub(),
		cache.NewMemorySnapshotCache(time.Minute),
		queue,
		service.CanvasSize{Width: 64, Height: 64},
	)
	return svc, opStore, queue
}

// testSink records what a session is sent.
type testSink struct {
	mu     sync.Mutex
	events []hub.Event
}

func (s *testSink) Deliver(e hub.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return true
}

func (s *testSink) OfType(eventType hub.EventType) []hub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []hub.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *testSink) All() []hub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hub.Event(nil), s.events...)
}

func joinAs(t *testing.T, svc *service.Service, roomId string, userId string) (*hub.Session, *testSink) {
	sink := &testSink{}
	session, err := hub.NewSession(roomId, models.User{Id: userId, Name: userId, Color: "#336699"}, sink)
	require.NoError(t, err)
	require.NoError(t, svc.JoinRoom(t.Context(), session))
	return session, sink
}

func stroke(points ...models.Point) service.SubmitParams {
	return service.SubmitParams{Tool: models.ToolBrush, Color: "#FF0000", Width: 3, Points: points}
}

var diagonal = []models.Point{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}}
