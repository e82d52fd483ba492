package store

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/canvasync/models"
)

// OperationStore is the append-only, per-room ordered log of strokes.
// Append is the only call that must be linearizable per room: it alone assigns
// sequence numbers.
type OperationStore interface {
	Append(ctx context.Context, op models.NewOperation) (models.Operation, error)
	ListActive(ctx context.Context, roomId string) ([]models.Operation, error)
	SetUndone(ctx context.Context, operationId string, undone bool) (models.Operation, error)
	LatestActive(ctx context.Context, roomId string) (models.Operation, bool, error)
	LatestUndone(ctx context.Context, roomId string) (models.Operation, bool, error)
}

var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNotFound         = errors.New("item does not exist")
)

// Validate normalizes a submission, wrapping any problem in ErrInvalidOperation.
// Stores call it before touching the room sequence so rejected strokes never
// consume a sequence number.
func Validate(op models.NewOperation) (models.NewOperation, error) {
	op, err := op.Normalize()
	if err != nil {
		return op, errors.Join(ErrInvalidOperation, err)
	}
	return op, nil
}

func NewOperationId() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
