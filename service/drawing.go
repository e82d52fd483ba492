package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/store"
)

type SubmitParams struct {
	Tool   models.Tool
	Color  string
	Width  float64
	Points []models.Point
}

// SubmitOperation commits a stroke for session's user and sends it to everyone
// else in the room. The caller already drew it, so session itself gets only the
// returned Operation.
func (s *Service) SubmitOperation(ctx context.Context, session *hub.Session, params SubmitParams) (models.Operation, error) {
	newOp, err := store.Validate(models.NewOperation{
		RoomId:    session.RoomId,
		UserId:    session.User.Id,
		UserColor: session.User.Color,
		Tool:      params.Tool,
		Color:     params.Color,
		Width:     params.Width,
		Points:    params.Points,
	})
	if err != nil {
		return models.Operation{}, err
	}

	op, err := s.Hub.Append(session.RoomId, session, func() (models.Operation, error) {
		return s.Store.Append(ctx, newOp)
	})
	if err != nil {
		if !errors.Is(err, store.ErrInvalidOperation) {
			slog.Error("Failed to append operation", "roomId", session.RoomId, "userId", session.User.Id, "sessionId", session.Id, "error", err)
		}
		return models.Operation{}, err
	}
	return op, nil
}

// LoadRoom returns the room's visible operations in sequence order.
func (s *Service) LoadRoom(ctx context.Context, roomId string) ([]models.Operation, error) {
	if err := models.ValidRoomId(roomId); err != nil {
		return nil, errors.Join(ErrInvalidRoom, err)
	}
	return s.Store.ListActive(ctx, roomId)
}
