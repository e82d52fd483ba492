package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/canvasync/models"
)

type MockOperationStore struct {
	mock.Mock
}

func (m *MockOperationStore) Append(ctx context.Context, newOp models.NewOperation) (models.Operation, error) {
	args := m.Called(ctx, newOp)
	return args.Get(0).(models.Operation), args.Error(1)
}

func (m *MockOperationStore) ListActive(ctx context.Context, roomId string) ([]models.Operation, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]models.Operation), args.Error(1)
}

func (m *MockOperationStore) SetUndone(ctx context.Context, operationId string, undone bool) (models.Operation, error) {
	args := m.Called(ctx, operationId, undone)
	return args.Get(0).(models.Operation), args.Error(1)
}

func (m *MockOperationStore) LatestActive(ctx context.Context, roomId string) (models.Operation, bool, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(models.Operation), args.Bool(1), args.Error(2)
}

func (m *MockOperationStore) LatestUndone(ctx context.Context, roomId string) (models.Operation, bool, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(models.Operation), args.Bool(1), args.Error(2)
}
