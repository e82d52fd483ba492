package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zlnvch/canvasync/service"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

type operationsResponse struct {
	RoomId     string `json:"roomId"`
	Operations any    `json:"operations"`
}

type presenceResponse struct {
	RoomId string `json:"roomId"`
	Users  any    `json:"users"`
}

// HandleOperations returns the room's visible operations, oldest first.
func (h *Handler) HandleOperations(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")

	ops, err := h.Service.LoadRoom(r.Context(), roomId)
	if err != nil {
		h.sendError(w, roomId, err)
		return
	}

	h.sendResponse(w, operationsResponse{RoomId: roomId, Operations: ops})
}

func (h *Handler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")

	users, err := h.Service.LivePresence(r.Context(), roomId)
	if err != nil {
		h.sendError(w, roomId, err)
		return
	}

	h.sendResponse(w, presenceResponse{RoomId: roomId, Users: users})
}

// HandleRequestSnapshot queues a render; the result shows up at snapshot.png.
func (h *Handler) HandleRequestSnapshot(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")

	if err := h.Service.RequestSnapshot(r.Context(), roomId); err != nil {
		h.sendError(w, roomId, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")

	png, err := h.Service.Snapshot(r.Context(), roomId)
	if err != nil {
		h.sendError(w, roomId, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(png); err != nil {
		slog.Warn("Failed to write snapshot", "roomId", roomId, "error", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, roomId string, err error) {
	if errors.Is(err, service.ErrInvalidRoom) {
		http.Error(w, "Invalid room id", http.StatusBadRequest)
		return
	}
	slog.Error("Request failed", "roomId", roomId, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
