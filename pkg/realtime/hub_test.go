package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, userID)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Connected(userID) }, time.Second, 10*time.Millisecond)
	return conn
}

func TestHubPublishDeliversToUser(t *testing.T) {
	hub := NewHub(nil, nil)
	conn := dialHub(t, hub, "user-1")

	hub.Publish("user-1", map[string]string{"type": "quote.submitted", "entity_id": "q-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"quote.submitted","entity_id":"q-1"}`, string(data))
}

func TestHubPublishUnknownUserIsNoop(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Publish("nobody", map[string]string{"type": "x"})
	assert.False(t, hub.Connected("nobody"))

	var nilHub *Hub
	nilHub.Publish("user-1", "ignored")
}

func TestHubCloseDropsConnections(t *testing.T) {
	hub := NewHub(nil, []string{"*"})
	conn := dialHub(t, hub, "user-2")

	hub.Close()
	assert.False(t, hub.Connected("user-2"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	req.Header.Del("Origin")
	assert.True(t, check(req))
}
