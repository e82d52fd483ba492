package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/worker"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A full-length stroke is a few
	// hundred KB of JSON.
	maxMessageSize = 512 * 1024
)

type ClientConfig struct {
	SendBuffer            int
	MessagesPerSecond     float64
	Burst                 int
	MaxRooms              int
	MaxConnectionsPerUser int
	CursorInterval        time.Duration
}

var DefaultClientConfig = ClientConfig{
	SendBuffer:            256,
	MessagesPerSecond:     60,
	Burst:                 120,
	MaxRooms:              8,
	MaxConnectionsPerUser: 5,
	CursorInterval:        worker.DefaultCursorInterval,
}

// MessageHandler processes one inbound frame. A non-nil error closes the
// connection.
type MessageHandler func(client *Client, messageType int, messageBytes []byte) error

// CloseHandler runs once the read pump stops. graceful is true only when the
// peer sent a normal or going-away close frame.
type CloseHandler func(client *Client, graceful bool)

// membership is a client's presence in one room.
type membership struct {
	session    *hub.Session
	throttle   *worker.CursorThrottle
	stop       context.CancelFunc
	lastCursor models.CursorUpdate
}

// Client is a middleman between the websocket connection and the rooms it has
// joined. rooms is owned by the read pump goroutine.
type Client struct {
	conn    *websocket.Conn
	user    models.User
	handler MessageHandler
	onClose CloseHandler
	Send    chan []byte // Buffered channel of outbound messages.
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	rooms   map[string]*membership
}

func NewClient(conn *websocket.Conn, user models.User, cfg ClientConfig, handler MessageHandler, onClose CloseHandler) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		user:    user,
		handler: handler,
		onClose: onClose,
		Send:    make(chan []byte, cfg.SendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst),
		rooms:   make(map[string]*membership),
	}
}

func (c *Client) User() models.User {
	return c.user
}

// Deliver queues a room event without blocking. A full queue means the peer is
// not keeping up; the connection is shut down and the hub drops the session.
func (c *Client) Deliver(e hub.Event) bool {
	msg, err := encodeEvent(e)
	if err != nil {
		slog.Error("Failed to encode event", "type", e.Type, "roomId", e.RoomId, "error", err)
		return true
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.Send <- msg:
		return true
	default:
		slog.Warn("Send buffer full, closing connection", "userId", c.user.Id)
		c.cancel()
		return false
	}
}

func (c *Client) ReadPump() {
	graceful := false
	defer func() {
		c.cancel()
		c.onClose(c, graceful)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				graceful = true
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseAbnormalClosure) {
				slog.Warn("WS close error", "userId", c.user.Id, "error", err)
			}
			return
		}

		if err := c.handler(c, messageType, messageBytes); err != nil {
			slog.Warn("Closing connection", "userId", c.user.Id, "error", err)
			return
		}
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.cancel()
	}()
	for {
		select {
		case message := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("WS send error", "userId", c.user.Id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Connection closed"),
			)
			return

		case <-shutdownCtx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Websocket service shutting down"),
			)
			return
		}
	}
}

func (c *Client) membership(roomId string) (*membership, bool) {
	m, ok := c.rooms[roomId]
	return m, ok
}

func (c *Client) addMembership(roomId string, m *membership) {
	c.rooms[roomId] = m
}

func (c *Client) removeMembership(roomId string) {
	if m, ok := c.rooms[roomId]; ok {
		m.stop()
		delete(c.rooms, roomId)
	}
}
