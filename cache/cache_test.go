package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySnapshotCache_PutGetExpire(t *testing.T) {
	c := NewMemorySnapshotCache(30 * time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := c.GetSnapshot(ctx, "room1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutSnapshot(ctx, "room1", []byte("png")))
	data, ok, err := c.GetSnapshot(ctx, "room1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("png"), data)

	now = now.Add(30 * time.Second)
	_, ok, err = c.GetSnapshot(ctx, "room1")
	require.NoError(t, err)
	assert.False(t, ok, "expired")
}
