package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockSnapshotCache struct {
	mock.Mock
}

func (m *MockSnapshotCache) PutSnapshot(ctx context.Context, roomId string, png []byte) error {
	args := m.Called(ctx, roomId, png)
	return args.Error(0)
}

func (m *MockSnapshotCache) GetSnapshot(ctx context.Context, roomId string) ([]byte, bool, error) {
	args := m.Called(ctx, roomId)
	var png []byte
	if v := args.Get(0); v != nil {
		png = v.([]byte)
	}
	return png, args.Bool(1), args.Error(2)
}
