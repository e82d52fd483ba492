package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/zlnvch/canvasync/canvas"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/worker"
)

// RequestSnapshot queues a background render of the room.
func (s *Service) RequestSnapshot(ctx context.Context, roomId string) error {
	if err := models.ValidRoomId(roomId); err != nil {
		return errors.Join(ErrInvalidRoom, err)
	}

	body, err := json.Marshal(worker.SnapshotMessage{RoomId: roomId})
	if err != nil {
		return err
	}
	return s.MQ.Send(ctx, string(body))
}

const renderTimeout = 30 * time.Second

// RenderSnapshot replays the room into a PNG and caches it. Concurrent renders
// of one room share a single replay, which runs detached from any one caller:
// a caller that gives up gets ctx.Err() while the others still get the image.
func (s *Service) RenderSnapshot(ctx context.Context, roomId string) ([]byte, error) {
	if err := models.ValidRoomId(roomId); err != nil {
		return nil, errors.Join(ErrInvalidRoom, err)
	}

	ch := s.renders.DoChan(roomId, func() (any, error) {
		renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), renderTimeout)
		defer cancel()
		return s.render(renderCtx, roomId)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (s *Service) render(ctx context.Context, roomId string) ([]byte, error) {
	ops, err := s.Store.ListActive(ctx, roomId)
	if err != nil {
		return nil, err
	}

	surface := canvas.NewSurface(s.CanvasSize.Width, s.CanvasSize.Height)
	surface.Replay(ops)
	var buf bytes.Buffer
	if err := surface.EncodePNG(&buf); err != nil {
		return nil, err
	}

	if err := s.Snapshots.PutSnapshot(ctx, roomId, buf.Bytes()); err != nil {
		slog.Warn("Failed to cache snapshot", "roomId", roomId, "error", err)
	}
	return buf.Bytes(), nil
}

// Snapshot serves the cached PNG when there is one and renders otherwise.
func (s *Service) Snapshot(ctx context.Context, roomId string) ([]byte, error) {
	if err := models.ValidRoomId(roomId); err != nil {
		return nil, errors.Join(ErrInvalidRoom, err)
	}

	png, ok, err := s.Snapshots.GetSnapshot(ctx, roomId)
	if err != nil {
		slog.Warn("Snapshot cache read failed", "roomId", roomId, "error", err)
	}
	if ok {
		return png, nil
	}
	return s.RenderSnapshot(ctx, roomId)
}
