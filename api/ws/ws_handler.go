package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/service"
	"github.com/zlnvch/canvasync/store"
	"github.com/zlnvch/canvasync/worker"
)

// Upper bound for any single service call made on behalf of a message
const requestTimeout = 10 * time.Second

type Handler struct {
	Service  *service.Service
	Registry *Registry
	config   ClientConfig
}

func NewHandler(svc *service.Service, cfg ClientConfig) *Handler {
	return &Handler{
		Service:  svc,
		Registry: NewRegistry(cfg.MaxConnectionsPerUser),
		config:   cfg,
	}
}

// NewWsUpgrader accepts exact origin matches; "*" accepts any origin.
func (h *Handler) NewWsUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
		Subprotocols: []string{"canvasync-v1"},
	}
}

// ServeWS handles websocket requests from the peer. The identity comes from the
// userId, userName and userColor query parameters.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	query := r.URL.Query()
	user, err := models.NormalizeUser(models.User{
		Id:    query.Get("userId"),
		Name:  query.Get("userName"),
		Color: query.Get("userColor"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade ws connection", "error", err)
		return
	}

	client := NewClient(conn, user, h.config, h.HandleWsMessage, h.handleClose)

	// Must upgrade the connection in order to be able to send custom close message
	if !h.Registry.Open(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Too many connections"),
		)
		conn.Close()
		return
	}

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// HandleWsMessage dispatches one client message. Cursor and heartbeat messages
// are exempt from the connection rate limit since the cursor throttle already
// coalesces them; clients may stream raw pointer moves.
func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) error {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		slog.Warn("Invalid JSON", "userId", client.user.Id, "error", err)
		if !client.limiter.Allow() {
			return errRateLimited
		}
		return nil
	}

	if !rateExempt(msg.Type) && !client.limiter.Allow() {
		return errRateLimited
	}

	var resp responseMessage

	switch msg.Type {
	case "join":
		var roomMsg roomMessage
		if err := json.Unmarshal(msg.Data, &roomMsg); err != nil {
			slog.Warn("Invalid join data", "error", err)
			return nil
		}
		resp = h.handleJoin(client, roomMsg)

	case "leave":
		var roomMsg roomMessage
		if err := json.Unmarshal(msg.Data, &roomMsg); err != nil {
			slog.Warn("Invalid leave data", "error", err)
			return nil
		}
		resp = h.handleLeave(client, roomMsg)

	case "submit":
		var submitMsg submitMessage
		if err := json.Unmarshal(msg.Data, &submitMsg); err != nil {
			slog.Warn("Invalid submit data", "error", err)
			return nil
		}
		resp = h.handleSubmit(client, submitMsg)

	case "undo", "redo":
		var roomMsg roomMessage
		if err := json.Unmarshal(msg.Data, &roomMsg); err != nil {
			slog.Warn("Invalid undo/redo data", "type", msg.Type, "error", err)
			return nil
		}
		resp = h.handleHistory(client, roomMsg, msg.Type == "undo")

	case "cursor":
		var cursorMsg cursorMessage
		if err := json.Unmarshal(msg.Data, &cursorMsg); err != nil {
			slog.Warn("Invalid cursor data", "error", err)
			return nil
		}
		h.handleCursor(client, cursorMsg)

	case "heartbeat":
		var roomMsg roomMessage
		if err := json.Unmarshal(msg.Data, &roomMsg); err != nil {
			slog.Warn("Invalid heartbeat data", "error", err)
			return nil
		}
		h.handleHeartbeat(client, roomMsg)

	default:
		slog.Warn("Unknown message type", "type", msg.Type)
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			slog.Error("Error marshaling response JSON", "error", err)
			return nil
		}
		client.enqueue(respBytes)
	}
	return nil
}

func rateExempt(msgType string) bool {
	return msgType == "cursor" || msgType == "heartbeat"
}

func failure(respType string, roomId string, err error) responseMessage {
	return responseMessage{
		Type: respType,
		Data: map[string]any{"success": false, "roomId": roomId, "error": err.Error()},
	}
}

var (
	errAlreadyJoined = errors.New("already joined")
	errNotJoined     = errors.New("not joined")
	errTooManyRooms  = errors.New("too many rooms")
	errRateLimited   = errors.New("message rate limit exceeded")
)

// handleJoin queues the room's replay ahead of join_response.
func (h *Handler) handleJoin(client *Client, roomMsg roomMessage) responseMessage {
	const respType = "join_response"

	if _, ok := client.membership(roomMsg.RoomId); ok {
		return failure(respType, roomMsg.RoomId, errAlreadyJoined)
	}
	if h.config.MaxRooms > 0 && len(client.rooms) >= h.config.MaxRooms {
		return failure(respType, roomMsg.RoomId, errTooManyRooms)
	}

	session, err := hub.NewSession(roomMsg.RoomId, client.user, client)
	if err != nil {
		return failure(respType, roomMsg.RoomId, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := h.Service.JoinRoom(ctx, session); err != nil {
		return failure(respType, roomMsg.RoomId, err)
	}

	throttleCtx, stop := context.WithCancel(client.ctx)
	throttle := worker.NewCursorThrottle(h.config.CursorInterval, func(update models.CursorUpdate) {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_ = h.Service.UpdateCursor(ctx, update)
	})
	go throttle.Run(throttleCtx)

	client.addMembership(roomMsg.RoomId, &membership{
		session:    session,
		throttle:   throttle,
		stop:       stop,
		lastCursor: models.CursorUpdate{RoomId: roomMsg.RoomId, UserId: client.user.Id},
	})

	return responseMessage{
		Type: respType,
		Data: map[string]any{"success": true, "roomId": roomMsg.RoomId, "sessionId": session.Id},
	}
}

func (h *Handler) handleLeave(client *Client, roomMsg roomMessage) responseMessage {
	const respType = "leave_response"

	m, ok := client.membership(roomMsg.RoomId)
	if !ok {
		return failure(respType, roomMsg.RoomId, errNotJoined)
	}
	client.removeMembership(roomMsg.RoomId)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := h.Service.LeaveRoom(ctx, m.session); err != nil {
		return failure(respType, roomMsg.RoomId, err)
	}

	return responseMessage{
		Type: respType,
		Data: map[string]any{"success": true, "roomId": roomMsg.RoomId},
	}
}

func (h *Handler) handleSubmit(client *Client, submitMsg submitMessage) responseMessage {
	const respType = "submit_response"

	m, ok := client.membership(submitMsg.RoomId)
	if !ok {
		return failure(respType, submitMsg.RoomId, errNotJoined)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	op, err := h.Service.SubmitOperation(ctx, m.session, service.SubmitParams{
		Tool:   submitMsg.Tool,
		Color:  submitMsg.Color,
		Width:  submitMsg.Width,
		Points: submitMsg.Points,
	})
	if err != nil {
		errMsg := "failed to save operation"
		if errors.Is(err, store.ErrInvalidOperation) {
			errMsg = err.Error()
		}
		return responseMessage{
			Type: respType,
			Data: map[string]any{"success": false, "roomId": submitMsg.RoomId, "clientId": submitMsg.ClientId, "error": errMsg},
		}
	}

	return responseMessage{
		Type: respType,
		Data: map[string]any{"success": true, "roomId": submitMsg.RoomId, "clientId": submitMsg.ClientId, "operation": op},
	}
}

// handleHistory answers undo and redo. The changed operation itself reaches the
// caller as an operation_changed event like everyone else.
func (h *Handler) handleHistory(client *Client, roomMsg roomMessage, undo bool) responseMessage {
	respType := "redo_response"
	if undo {
		respType = "undo_response"
	}

	if _, ok := client.membership(roomMsg.RoomId); !ok {
		return failure(respType, roomMsg.RoomId, errNotJoined)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var changed bool
	var err error
	if undo {
		_, changed, err = h.Service.Undo(ctx, roomMsg.RoomId)
	} else {
		_, changed, err = h.Service.Redo(ctx, roomMsg.RoomId)
	}
	if err != nil {
		return failure(respType, roomMsg.RoomId, err)
	}

	return responseMessage{
		Type: respType,
		Data: map[string]any{"success": true, "roomId": roomMsg.RoomId, "changed": changed},
	}
}

func (h *Handler) handleCursor(client *Client, cursorMsg cursorMessage) {
	m, ok := client.membership(cursorMsg.RoomId)
	if !ok {
		return
	}

	m.lastCursor = models.CursorUpdate{
		RoomId:    cursorMsg.RoomId,
		UserId:    client.user.Id,
		X:         cursorMsg.X,
		Y:         cursorMsg.Y,
		IsDrawing: cursorMsg.IsDrawing,
	}
	offerCursor(m)
}

// handleHeartbeat refreshes presence for an idle user by re-sending the last
// known cursor.
func (h *Handler) handleHeartbeat(client *Client, roomMsg roomMessage) {
	if m, ok := client.membership(roomMsg.RoomId); ok {
		offerCursor(m)
	}
}

func offerCursor(m *membership) {
	m.throttle.Push(m.lastCursor)
}

func (h *Handler) handleClose(client *Client, graceful bool) {
	h.Registry.Close(client)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	for roomId, m := range client.rooms {
		client.removeMembership(roomId)
		if graceful {
			_ = h.Service.LeaveRoom(ctx, m.session)
		} else {
			h.Service.DropSession(m.session)
		}
	}
}
