package service_test

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	cachemocks "github.com/zlnvch/canvasync/cache/mocks"
	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
	mqmocks "github.com/zlnvch/canvasync/mq/mocks"
	"github.com/zlnvch/canvasync/presence"
	"github.com/zlnvch/canvasync/service"
	storemocks "github.com/zlnvch/canvasync/store/mocks"
)

func TestRequestSnapshot_QueuesJob(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	svc := service.NewService(new(storemocks.MockOperationStore), presence.NewMemoryRegistry(0), hub.NewHub(), new(cachemocks.MockSnapshotCache), mockMQ, service.CanvasSize{})

	mockMQ.On("Send", mock.Anything, `{"roomId":"room1"}`).Return(nil).Once()

	require.NoError(t, svc.RequestSnapshot(t.Context(), "room1"))
	mockMQ.AssertExpectations(t)
}

func TestRequestSnapshot_InvalidRoomNotQueued(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	svc := service.NewService(new(storemocks.MockOperationStore), presence.NewMemoryRegistry(0), hub.NewHub(), new(cachemocks.MockSnapshotCache), mockMQ, service.CanvasSize{})

	assert.ErrorIs(t, svc.RequestSnapshot(t.Context(), ""), service.ErrInvalidRoom)
	mockMQ.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRenderSnapshot_ReplaysVisibleOperations(t *testing.T) {
	svc, _, _ := setupService(t)
	alice, _ := joinAs(t, svc, "room1", "alice")
	_, err := svc.SubmitOperation(t.Context(), alice, service.SubmitParams{
		Tool: models.ToolBrush, Color: "#00FF00", Width: 8,
		Points: []models.Point{{X: 0, Y: 32}, {X: 64, Y: 32}},
	})
	require.NoError(t, err)

	data, err := svc.RenderSnapshot(t.Context(), "room1")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	_, g, _, a := img.At(32, 32).RGBA()
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), a)
	_, _, _, a = img.At(32, 5).RGBA()
	assert.Equal(t, uint32(0), a)

	cached, err := svc.Snapshot(t.Context(), "room1")
	require.NoError(t, err)
	assert.Equal(t, data, cached)
}

func TestSnapshot_CacheHitSkipsStore(t *testing.T) {
	mockStore := new(storemocks.MockOperationStore)
	mockCache := new(cachemocks.MockSnapshotCache)
	svc := service.NewService(mockStore, presence.NewMemoryRegistry(0), hub.NewHub(), mockCache, new(mqmocks.MockMQ), service.CanvasSize{})

	mockCache.On("GetSnapshot", mock.Anything, "room1").Return([]byte("cached"), true, nil)

	data, err := svc.Snapshot(t.Context(), "room1")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), data)
	mockStore.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything)
}

func TestSnapshot_CacheFailureFallsBackToRender(t *testing.T) {
	mockStore := new(storemocks.MockOperationStore)
	mockCache := new(cachemocks.MockSnapshotCache)
	svc := service.NewService(mockStore, presence.NewMemoryRegistry(0), hub.NewHub(), mockCache, new(mqmocks.MockMQ), service.CanvasSize{Width: 8, Height: 8})

	mockCache.On("GetSnapshot", mock.Anything, "room1").Return(nil, false, errors.New("redis down"))
	mockCache.On("PutSnapshot", mock.Anything, "room1", mock.Anything).Return(errors.New("redis down"))
	mockStore.On("ListActive", mock.Anything, "room1").Return([]models.Operation{}, nil)

	data, err := svc.Snapshot(t.Context(), "room1")
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestRenderSnapshot_StoreErrorNotCached(t *testing.T) {
	mockStore := new(storemocks.MockOperationStore)
	mockCache := new(cachemocks.MockSnapshotCache)
	svc := service.NewService(mockStore, presence.NewMemoryRegistry(0), hub.NewHub(), mockCache, new(mqmocks.MockMQ), service.CanvasSize{})

	mockStore.On("ListActive", mock.Anything, "room1").Return([]models.Operation(nil), errors.New("db down"))

	_, err := svc.RenderSnapshot(t.Context(), "room1")
	assert.Error(t, err)
	mockCache.AssertNotCalled(t, "PutSnapshot", mock.Anything, mock.Anything, mock.Anything)
}

func TestRenderSnapshot_ConcurrentCallsShareOneReplay(t *testing.T) {
	mockStore := new(storemocks.MockOperationStore)
	mockCache := new(cachemocks.MockSnapshotCache)
	svc := service.NewService(mockStore, presence.NewMemoryRegistry(0), hub.NewHub(), mockCache, new(mqmocks.MockMQ), service.CanvasSize{Width: 8, Height: 8})

	release := make(chan struct{})
	mockStore.On("ListActive", mock.Anything, "room1").
		Run(func(args mock.Arguments) { <-release }).
		Return([]models.Operation{}, nil)
	mockCache.On("PutSnapshot", mock.Anything, "room1", mock.Anything).Return(nil)

	const callers = 5
	var started, wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			_, err := svc.RenderSnapshot(context.Background(), "room1")
			assert.NoError(t, err)
		}()
	}
	started.Wait()
	close(release)
	wg.Wait()

	calls := 0
	for _, c := range mockStore.Calls {
		if c.Method == "ListActive" {
			calls++
		}
	}
	assert.GreaterOrEqual(t, calls, 1)
	assert.Less(t, calls, callers+1)
}

func TestRenderSnapshot_CancelledCallerDoesNotAbortSharedRender(t *testing.T) {
	mockStore := new(storemocks.MockOperationStore)
	mockCache := new(cachemocks.MockSnapshotCache)
	svc := service.NewService(mockStore, presence.NewMemoryRegistry(0), hub.NewHub(), mockCache, new(mqmocks.MockMQ), service.CanvasSize{Width: 8, Height: 8})

	entered := make(chan context.Context, 4)
	release := make(chan struct{})
	mockStore.On("ListActive", mock.Anything, "room1").
		Run(func(args mock.Arguments) {
			entered <- args.Get(0).(context.Context)
			<-release
		}).
		Return([]models.Operation{}, nil)
	cached := make(chan struct{}, 4)
	mockCache.On("PutSnapshot", mock.Anything, "room1", mock.Anything).
		Run(func(args mock.Arguments) { cached <- struct{}{} }).
		Return(nil)

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.RenderSnapshot(firstCtx, "room1")
		firstErr <- err
	}()

	var renderCtx context.Context
	select {
	case renderCtx = <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("render never reached the store")
	}

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}
	assert.NoError(t, renderCtx.Err(), "render keeps running for other callers")

	secondResult := make(chan []byte, 1)
	go func() {
		data, err := svc.RenderSnapshot(t.Context(), "room1")
		assert.NoError(t, err)
		secondResult <- data
	}()
	close(release)

	select {
	case data := <-secondResult:
		_, err := png.Decode(bytes.NewReader(data))
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller got no snapshot")
	}
	select {
	case <-cached:
	case <-time.After(2 * time.Second):
		t.Fatal("render started by the cancelled caller was never cached")
	}
}
