package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/store"
	"github.com/zlnvch/canvasync/store/memory"
)

func newOp(roomId string, points ...models.Point) models.NewOperation {
	if len(points) == 0 {
		points = []models.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}
	}
	return models.NewOperation{
		RoomId:    roomId,
		UserId:    "alice",
		UserColor: "#112233",
		Tool:      models.ToolBrush,
		Color:     "#ff0000",
		Width:     3,
		Points:    points,
	}
}

func TestAppend_AssignsSequencePerRoom(t *testing.T) {
	s := memory.NewMemoryOperationStore()
	ctx := context.Background()

	a1, err := s.Append(ctx, newOp("a"))
	require.NoError(t, err)
	a2, err := s.Append(ctx, newOp("a"))
	require.NoError(t, err)
	b1, err := s.Append(ctx, newOp("b"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a1.SequenceNumber)
	assert.Equal(t, int64(2), a2.SequenceNumber)
	assert.Equal(t, int64(1), b1.SequenceNumber)
	assert.NotEqual(t, a1.Id, a2.Id)
	assert.False(t, a1.IsUndone)
	assert.False(t, a1.Created.IsZero())
}

func TestAppend_RejectedStrokeKeepsSequence(t *testing.T) {
	s := memory.NewMemoryOperationStore()
	ctx := context.Background()

	_, err := s.Append(ctx, newOp("a"))
	require.NoError(t, err)

	_, err = s.Append(ctx, newOp("a", models.Point{X: 4, Y: 4}))
	assert.ErrorIs(t, err, store.ErrInvalidOperation)

	next, err := s.Append(ctx, newOp("a"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.SequenceNumber)
}

func TestAppend_ConcurrentUniqueSequences(t *testing.T) {
	s := memory.NewMemoryOperationStore()
	ctx := context.Background()

	const n = 200
	seqs := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op, err := s.Append(ctx, newOp("room"))
			assert.NoError(t, err)
			seqs <- op.SequenceNumber
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool, n)
	for seq := range seqs {
		assert.False(t, seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}

	ops, err := s.ListActive(ctx, "room")
	require.NoError(t, err)
	for i := range ops {
		assert.Equal(t, int64(i+1), ops[i].SequenceNumber)
	}
}

func TestAppend_CopiesPoints(t *testing.T) {
	s := memory.NewMemoryOperationStore()
	points := []models.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}

	_, err := s.Append(context.Background(), newOp("a", points...))
	require.NoError(t, err)
	points[0].X = 99

	ops, err := s.ListActive(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, float64(0), ops[0].Points[0].X)
}

func TestSetUndoneAndLatest(t *testing.T) {
	s := memory.NewMemoryOperationStore()
	ctx := context.Background()

	first, _ := s.Append(ctx, newOp("a"))
	second, _ := s.Append(ctx, newOp("a"))

	latest, ok, err := s.LatestActive(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.Id, latest.Id)

	_, ok, err = s.LatestUndone(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	undone, err := s.SetUndone(ctx, second.Id, true)
	require.NoError(t, err)
	assert.True(t, undone.IsUndone)
	assert.Equal(t, second.SequenceNumber, undone.SequenceNumber)

	latest, _, _ = s.LatestActive(ctx, "a")
	assert.Equal(t, first.Id, latest.Id)
	latestUndone, ok, _ := s.LatestUndone(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, second.Id, latestUndone.Id)

	active, err := s.ListActive(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []models.Operation{first}, active)
}

func TestSetUndone_UnknownId(t *testing.T) {
	s := memory.NewMemoryOperationStore()

	_, err := s.SetUndone(context.Background(), "nope", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEmptyRoom(t *testing.T) {
	s := memory.NewMemoryOperationStore()
	ctx := context.Background()

	ops, err := s.ListActive(ctx, "empty")
	assert.NoError(t, err)
	assert.Empty(t, ops)

	_, ok, err := s.LatestActive(ctx, "empty")
	assert.NoError(t, err)
	assert.False(t, ok)
}
