package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
)

// JoinRoom subscribes session to its room and marks its user present. The
// session's sink receives the replay before any live event.
func (s *Service) JoinRoom(ctx context.Context, session *hub.Session) error {
	if err := models.ValidRoomId(session.RoomId); err != nil {
		return errors.Join(ErrInvalidRoom, err)
	}

	err := s.Hub.Subscribe(session, func() ([]models.Operation, error) {
		return s.Store.ListActive(ctx, session.RoomId)
	})
	if err != nil {
		slog.Error("Failed to subscribe session", "roomId", session.RoomId, "sessionId", session.Id, "error", err)
		return err
	}

	user := session.User
	if err := s.Presence.Join(ctx, session.RoomId, user.Id, user.Name, user.Color); err != nil {
		slog.Error("Failed to join presence", "roomId", session.RoomId, "userId", user.Id, "error", err)
		s.Hub.Unsubscribe(session)
		return err
	}

	s.broadcastPresence(ctx, session.RoomId)
	return nil
}

// LeaveRoom is an explicit departure: the session stops receiving events and
// its user's presence is removed straight away.
func (s *Service) LeaveRoom(ctx context.Context, session *hub.Session) error {
	s.Hub.Unsubscribe(session)

	if err := s.Presence.Leave(ctx, session.RoomId, session.User.Id); err != nil {
		slog.Error("Failed to leave presence", "roomId", session.RoomId, "userId", session.User.Id, "error", err)
		return err
	}

	s.broadcastPresence(ctx, session.RoomId)
	return nil
}

// DropSession stops delivery to a session whose connection went away without
// saying goodbye. Its presence record is left to go stale.
func (s *Service) DropSession(session *hub.Session) {
	s.Hub.Unsubscribe(session)
}

func (s *Service) UpdateCursor(ctx context.Context, update models.CursorUpdate) error {
	if err := s.Presence.UpdateCursor(ctx, update); err != nil {
		slog.Error("Failed to update cursor", "roomId", update.RoomId, "userId", update.UserId, "error", err)
		return err
	}

	s.broadcastPresence(ctx, update.RoomId)
	return nil
}

func (s *Service) LivePresence(ctx context.Context, roomId string) ([]models.Presence, error) {
	if err := models.ValidRoomId(roomId); err != nil {
		return nil, errors.Join(ErrInvalidRoom, err)
	}
	return s.Presence.ListLive(ctx, roomId)
}

func (s *Service) broadcastPresence(ctx context.Context, roomId string) {
	err := s.Hub.Presence(roomId, func() ([]models.Presence, error) {
		return s.Presence.ListLive(ctx, roomId)
	})
	if err != nil {
		slog.Error("Failed to broadcast presence", "roomId", roomId, "error", err)
	}
}
