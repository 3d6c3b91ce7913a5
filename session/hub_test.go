package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testOwner = uuid.MustParse("7d0f6a52-5d55-4c3b-9a3c-2f7b1c0e8a11")

func startTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(context.Background(), zap.NewNop().Sugar())
	go hub.Start()
	t.Cleanup(hub.Stop)
	require.Eventually(t, hub.Running, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := testOwner
		if raw := r.URL.Query().Get("userId"); raw != "" {
			owner = uuid.MustParse(raw)
		}
		if err := hub.ServeWS(w, r, r.URL.Query().Get("clientId"), owner); err != nil {
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server, clientID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?clientId=" + clientID
}

func dial(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, clientID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func hasSession(h *Hub, clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[clientID]
	return ok
}

func TestHub_DisconnectSendsCloseFrame(t *testing.T) {
	hub, srv := startTestHub(t)
	conn := dial(t, srv, "client-1")
	require.Eventually(t, func() bool { return hasSession(hub, "client-1") }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Disconnect(ctx, "client-1"))
	assert.False(t, hasSession(hub, "client-1"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, DisconnectReason, closeErr.Text)
}

func TestHub_DisconnectUnknownSession(t *testing.T) {
	hub, _ := startTestHub(t)
	err := hub.Disconnect(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHub_ReconnectReplacesSession(t *testing.T) {
	hub, srv := startTestHub(t)
	first := dial(t, srv, "dup")
	require.Eventually(t, func() bool { return hub.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	dial(t, srv, "dup")

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "replaced socket must be closed")
	assert.Eventually(t, func() bool { return hub.SessionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHub_Broadcast(t *testing.T) {
	hub, srv := startTestHub(t)
	conn := dial(t, srv, "listener")
	require.Eventually(t, func() bool { return hasSession(hub, "listener") }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(context.Background(), "settings:mqttAuthorization", map[string]string{"k": "v"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "settings:mqttAuthorization", msg.Type)
	assert.Equal(t, map[string]interface{}{"k": "v"}, msg.Data)
}

func TestHub_StopClosesSessions(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop().Sugar())
	go hub.Start()
	require.Eventually(t, hub.Running, time.Second, 5*time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, "c", uuid.New())
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hasSession(hub, "c") }, time.Second, 10*time.Millisecond)

	hub.Stop()
	assert.Equal(t, 0, hub.SessionCount())
	assert.ErrorIs(t, hub.Broadcast(context.Background(), "x", nil), ErrHubStopped)
}

func TestHub_NotRunning(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop().Sugar())

	assert.ErrorIs(t, hub.Disconnect(context.Background(), "client-1"), ErrHubNotRunning)
	assert.ErrorIs(t, hub.Broadcast(context.Background(), "x", nil), ErrHubNotRunning)
	assert.ErrorIs(t, hub.ServeWS(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), "c", testOwner), ErrHubNotRunning)
}

func TestHub_BroadcastTimeoutIsReported(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop().Sugar())
	// Running but stalled: nothing drains the queue.
	hub.running.Store(true)
	hub.broadcast = make(chan []byte)

	err := hub.Broadcast(context.Background(), "settings:mqttAuthorization", map[string]string{"k": "v"})
	assert.ErrorIs(t, err, ErrBroadcastTimeout)
	assert.ErrorIs(t, hub.Publish(context.Background(), "x", nil), ErrBroadcastTimeout)
}

func TestHub_ClientIDHeldByAnotherUser(t *testing.T) {
	hub, srv := startTestHub(t)
	victim := dial(t, srv, "shared")
	require.Eventually(t, func() bool { return hasSession(hub, "shared") }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "shared")+"&userId="+uuid.NewString(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The original socket is untouched.
	require.NoError(t, hub.Broadcast(context.Background(), "ping", "still-here"))
	_ = victim.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := victim.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "still-here")
	assert.Equal(t, 1, hub.SessionCount())
}
