// internal/handlers/ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jklem/uno/internal/game"
)

type wireEvent struct {
	Type    string                 `json:"type"`
	Room    string                 `json:"room"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload"`
	State   json.RawMessage        `json:"state"`
}

func newWSTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	manager := game.NewRoomManager(game.ManagerConfig{}, logger, WSBroadcaster(logger))
	srv := httptest.NewServer(WSHandler(logger, manager))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(ClientMessage{Type: msgType, Payload: raw})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// awaitEvent reads frames until one of the wanted type arrives, skipping
// unrelated broadcasts along the way.
func awaitEvent(t *testing.T, conn *websocket.Conn, want string) wireEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 20; i++ {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev wireEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("no %q event within 20 frames", want)
	return wireEvent{}
}

func TestWelcomeAnnouncesConnectionID(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ev := awaitEvent(t, conn, "connected")
	require.NotNil(t, ev.Payload)
	raw, ok := ev.Payload["connectionId"].(string)
	require.True(t, ok, "connectionId must be a string")
	_, err := uuid.Parse(raw)
	assert.NoError(t, err, "connectionId must be a parseable UUID")
}

func TestReconnectWithAdvertisedConnectionID(t *testing.T) {
	srv := newWSTestServer(t)

	first := dialWS(t, srv)
	welcome := awaitEvent(t, first, "connected")
	oldID := welcome.Payload["connectionId"].(string)

	sendMessage(t, first, "createRoom", map[string]interface{}{"name": "ana"})
	created := awaitEvent(t, first, "roomCreated")
	require.NotEmpty(t, created.Room)

	first.Close(websocket.StatusNormalClosure, "")

	second := dialWS(t, srv)
	defer second.Close(websocket.StatusNormalClosure, "")
	awaitEvent(t, second, "connected")

	sendMessage(t, second, "reconnect", map[string]interface{}{"oldConnectionId": oldID})
	rejoined := awaitEvent(t, second, "roomJoined")
	assert.Equal(t, created.Room, rejoined.Room)
	assert.NotEmpty(t, rejoined.State, "reconnect resyncs the full room state")
}

func TestReconnectWithUnknownConnectionID(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")
	awaitEvent(t, conn, "connected")

	sendMessage(t, conn, "reconnect", map[string]interface{}{"oldConnectionId": uuid.New().String()})
	ev := awaitEvent(t, conn, "error")
	assert.Contains(t, ev.Message, "player not found")
}

func TestUnknownMessageType(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")
	awaitEvent(t, conn, "connected")

	sendMessage(t, conn, "teleport", map[string]interface{}{})
	ev := awaitEvent(t, conn, "error")
	assert.Contains(t, ev.Message, "unknown message type")
}
