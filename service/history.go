package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/store"
)

var ErrInvalidRoom = errors.New("invalid room")

// Undo hides the room's most recent visible operation, whoever drew it. changed
// is false when there was nothing to undo.
//
// Picking the target and flipping its flag are two store calls. Another
// instance can flip the same operation in between; the last write wins.
func (s *Service) Undo(ctx context.Context, roomId string) (op models.Operation, changed bool, err error) {
	return s.toggle(ctx, roomId, true, s.Store.LatestActive)
}

// Redo restores the most recently undone operation in the room. Strokes added
// after the undo do not block it.
func (s *Service) Redo(ctx context.Context, roomId string) (op models.Operation, changed bool, err error) {
	return s.toggle(ctx, roomId, false, s.Store.LatestUndone)
}

func (s *Service) toggle(
	ctx context.Context,
	roomId string,
	undone bool,
	latest func(ctx context.Context, roomId string) (models.Operation, bool, error),
) (models.Operation, bool, error) {
	if err := models.ValidRoomId(roomId); err != nil {
		return models.Operation{}, false, errors.Join(ErrInvalidRoom, err)
	}

	op, changed, err := s.Hub.Change(roomId, func() (models.Operation, bool, error) {
		target, ok, err := latest(ctx, roomId)
		if err != nil || !ok {
			return models.Operation{}, false, err
		}

		op, err := s.Store.SetUndone(ctx, target.Id, undone)
		if errors.Is(err, store.ErrNotFound) {
			// Gone between lookup and update
			return models.Operation{}, false, nil
		}
		if err != nil {
			return models.Operation{}, false, err
		}
		return op, true, nil
	})
	if err != nil {
		slog.Error("Failed to change operation", "roomId", roomId, "undone", undone, "error", err)
	}
	return op, changed, err
}
