// Package session tracks the live websocket sessions of the broker's clients and lets the
// control plane disconnect them by client id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"brokeradmin/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 512

	sendChannelSize = 256

	// DisconnectReason is sent in the close frame of an administrative disconnect.
	DisconnectReason = "session disconnected by administrator"
)

var (
	// ErrSessionNotFound is returned when no live session holds the client id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrHubStopped is returned when the hub no longer accepts sessions.
	ErrHubStopped = errors.New("session hub stopped")

	// ErrHubNotRunning is returned when the event loop has not been started. A hub that
	// is not running serves no sockets, so it cannot tell whether a session is live.
	ErrHubNotRunning = errors.New("session hub is not running")

	// ErrBroadcastTimeout is returned when a broadcast could not be queued in time.
	ErrBroadcastTimeout = errors.New("session broadcast timed out")

	// ErrClientIDInUse is returned when another user holds a live session for the client id.
	ErrClientIDInUse = errors.New("client id is in use by another user")
)

// Message is the envelope of every server-sent message.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// client is one live websocket session.
type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	clientID string
	userID   uuid.UUID

	quit     chan struct{}
	quitOnce sync.Once
	// done is closed once the write pump has exited and the socket is closed.
	done chan struct{}
}

func (c *client) shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// Hub maintains the live sessions keyed by client id. A client id holds at most one
// session; a reconnect replaces the previous socket.
type Hub struct {
	sessions map[string]*client

	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	running atomic.Bool
	logger  *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// CheckOrigin is left permissive because the API's CORS middleware runs first.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHub creates a hub. Start must be running before sessions are served.
func NewHub(ctx context.Context, logger *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		sessions:   make(map[string]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start runs the hub's event loop until Stop is called or the parent context ends.
func (h *Hub) Start() {
	defer close(h.done)
	h.running.Store(true)
	defer h.running.Store(false)
	h.logger.Info("Session hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for _, c := range h.sessions {
				c.shutdown()
			}
			h.sessions = make(map[string]*client)
			h.mu.Unlock()
			metrics.LiveSessions.Set(0)
			h.logger.Info("Session hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			old, ok := h.sessions[c.clientID]
			if ok && old.userID != c.userID {
				h.mu.Unlock()
				c.shutdown()
				h.logger.Warnw("Session rejected, client id held by another user",
					"client_id", c.clientID, "user_id", c.userID, "holder_id", old.userID)
				continue
			}
			if ok && old != c {
				old.shutdown()
				h.logger.Debugw("Session replaced by reconnect", "client_id", c.clientID)
			}
			h.sessions[c.clientID] = c
			total := len(h.sessions)
			h.mu.Unlock()
			metrics.LiveSessions.Set(float64(total))
			h.logger.Debugw("Session registered", "client_id", c.clientID, "user_id", c.userID, "total_sessions", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.sessions[c.clientID] == c {
				delete(h.sessions, c.clientID)
			}
			total := len(h.sessions)
			h.mu.Unlock()
			metrics.LiveSessions.Set(float64(total))

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.sessions {
				select {
				case c.send <- message:
				default:
					// Slow consumer; drop the session rather than block the hub.
					c.shutdown()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down and waits for the event loop to exit.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// Running reports whether the event loop is serving sessions.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Disconnect closes the live session of clientID with a close frame and waits until the
// socket is closed or ctx ends. ErrSessionNotFound is only returned by a running hub.
func (h *Hub) Disconnect(ctx context.Context, clientID string) error {
	if !h.running.Load() {
		return ErrHubNotRunning
	}
	h.mu.Lock()
	c, ok := h.sessions[clientID]
	if ok {
		delete(h.sessions, clientID)
	}
	total := len(h.sessions)
	h.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	metrics.LiveSessions.Set(float64(total))

	c.shutdown()
	select {
	case <-c.done:
		h.logger.Infow("Session disconnected", "client_id", clientID, "user_id", c.userID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("disconnect of %s did not complete: %w", clientID, ctx.Err())
	}
}

// Broadcast sends a typed message to every live session. A message that cannot be
// queued within one second fails with ErrBroadcastTimeout.
func (h *Hub) Broadcast(ctx context.Context, msgType string, data interface{}) error {
	if h.ctx.Err() != nil {
		return ErrHubStopped
	}
	if !h.running.Load() {
		return ErrHubNotRunning
	}
	payload, err := json.Marshal(Message{Type: msgType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	select {
	case h.broadcast <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubStopped
	case <-timer.C:
		h.logger.Warnw("Session broadcast timeout", "type", msgType)
		return fmt.Errorf("%s: %w", msgType, ErrBroadcastTimeout)
	}
}

// Publish lets the hub act as a settings notification publisher.
func (h *Hub) Publish(ctx context.Context, event string, payload interface{}) error {
	return h.Broadcast(ctx, event, payload)
}

// ServeWS upgrades the request into a live session for clientID owned by userID.
// ErrClientIDInUse and ErrHubNotRunning are returned before the upgrade is attempted,
// so the caller still owns the response.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID string, userID uuid.UUID) error {
	if !h.running.Load() {
		return ErrHubNotRunning
	}
	h.mu.RLock()
	holder, ok := h.sessions[clientID]
	h.mu.RUnlock()
	if ok && holder.userID != userID {
		return ErrClientIDInUse
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendChannelSize),
		clientID: clientID,
		userID:   userID,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close()
		return ErrHubStopped
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only watches for the peer going away; clients do not send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.shutdown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Debugw("Session closed unexpectedly", "client_id", c.clientID, "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, DisconnectReason),
				time.Now().Add(writeWait))
			return
		}
	}
}
