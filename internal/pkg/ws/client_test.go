package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagawarga/jagawarga/internal/pkg/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// newTestServer runs handle for every websocket connection and returns the
// ws:// URL to dial.
func newTestServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_ConnectAndStateTransitions(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	var transitions []State
	seen := make(chan State, 4)
	client := NewClient(Config{URL: url, OnStateChange: func(s State) { seen <- s }})
	defer client.Disconnect()

	require.NoError(t, client.Connect(context.Background()))

	for len(transitions) < 2 {
		select {
		case s := <-seen:
			transitions = append(transitions, s)
		case <-time.After(time.Second):
			t.Fatal("missing state transitions")
		}
	}
	assert.Equal(t, []State{StateConnecting, StateConnected}, transitions)
	assert.Equal(t, StateConnected, client.State())
}

func TestClient_EmitAndOn(t *testing.T) {
	emitted := make(chan models.WSMessage, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		emitted <- msg

		// Unsolicited push back on the shared topic.
		push := models.WSMessage{Event: "getLocation", Data: json.RawMessage(`{"requestID":"user-1","cases":[]}`)}
		conn.WriteJSON(push)
		conn.ReadMessage()
	})

	client := NewClient(Config{URL: url})
	defer client.Disconnect()

	received := make(chan json.RawMessage, 1)
	client.On("getLocation", func(data json.RawMessage) { received <- data })

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Emit("sendLocation", models.LocationEvent{UserID: "user-1", Latitude: 1, Longitude: 2}))

	select {
	case msg := <-emitted:
		assert.Equal(t, "sendLocation", msg.Event)
		var ev models.LocationEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "user-1", ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("server never saw the emit")
	}

	select {
	case data := <-received:
		var batch models.CaseBatch
		require.NoError(t, json.Unmarshal(data, &batch))
		assert.Equal(t, "user-1", batch.RequestID)
	case <-time.After(time.Second):
		t.Fatal("handler never saw the push")
	}
}

func TestClient_RequestCorrelation(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		var msg models.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "getLocation", msg.Event)

		var query models.CaseQuery
		require.NoError(t, json.Unmarshal(msg.Data, &query))
		require.NotEmpty(t, query.CorrelationID)

		reply, _ := json.Marshal(models.CaseBatch{
			RequestID:     query.RequestID,
			CorrelationID: query.CorrelationID,
			Cases:         []models.Case{{SharedID: "case-1", SharedUsername: "budi", LocationStartTime: 100}},
		})
		conn.WriteJSON(models.WSMessage{Event: "getLocation", Data: reply})
		conn.ReadMessage()
	})

	client := NewClient(Config{URL: url})
	defer client.Disconnect()
	require.NoError(t, client.Connect(context.Background()))

	data, err := client.Request(context.Background(), "getLocation", models.CaseQuery{RequestID: "user-1"})
	require.NoError(t, err)

	var batch models.CaseBatch
	require.NoError(t, json.Unmarshal(data, &batch))
	assert.Equal(t, "user-1", batch.RequestID)
	require.Len(t, batch.Cases, 1)
	assert.Equal(t, "case-1", batch.Cases[0].SharedID)
}

func TestClient_RequestIgnoresForeignCorrelation(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		// Reply addressed to some other request on the shared topic.
		conn.WriteJSON(models.WSMessage{
			Event: "getLocation",
			Data:  json.RawMessage(`{"correlationId":"someone-else","cases":[{"sharedId":"x"}]}`),
		})
		conn.ReadMessage()
	})

	client := NewClient(Config{URL: url})
	defer client.Disconnect()

	crossTalk := make(chan json.RawMessage, 1)
	client.On("getLocation", func(data json.RawMessage) { crossTalk <- data })

	require.NoError(t, client.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := client.Request(ctx, "getLocation", models.CaseQuery{RequestID: "user-1"})
	require.Error(t, err)

	// The stale correlated reply must not leak into the topic handlers.
	select {
	case <-crossTalk:
		t.Fatal("stale correlated reply reached topic handlers")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_HandlersSurviveReconnect(t *testing.T) {
	var connections atomic.Int32
	url := newTestServer(t, func(conn *websocket.Conn) {
		n := connections.Add(1)
		if n == 1 {
			// Drop the first connection straight away to force a reconnect.
			return
		}
		conn.WriteJSON(models.WSMessage{Event: "getLocation", Data: json.RawMessage(`{"requestID":"user-1","cases":[]}`)})
		conn.ReadMessage()
	})

	client := NewClient(Config{URL: url})
	defer client.Disconnect()

	received := make(chan json.RawMessage, 1)
	client.On("getLocation", func(data json.RawMessage) { received <- data })

	require.NoError(t, client.Connect(context.Background()))

	select {
	case <-received:
		assert.GreaterOrEqual(t, connections.Load(), int32(2))
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not survive the reconnect")
	}
}

func TestClient_DisconnectIdempotent(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	client := NewClient(Config{URL: url})
	require.NoError(t, client.Connect(context.Background()))

	client.Disconnect()
	client.Disconnect()

	assert.Equal(t, StateDisconnected, client.State())
	assert.ErrorIs(t, client.Emit("sendLocation", struct{}{}), ErrChannelClosed)
	assert.ErrorIs(t, client.Connect(context.Background()), ErrChannelClosed)
}

func TestClient_ReconnectExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	states := make(chan State, 8)
	client := NewClient(Config{URL: url, ReconnectAttempts: 1, OnStateChange: func(s State) { states <- s }})
	defer client.Disconnect()
	require.NoError(t, client.Connect(context.Background()))

	// Take the backend away entirely; every redial must now fail.
	server.Close()
	server.CloseClientConnections()

	require.Eventually(t, func() bool {
		return client.State() == StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := client.Request(ctx, "getLocation", models.CaseQuery{RequestID: "user-1"})
	assert.Error(t, err)
}

func TestClient_RequestRequiresObjectPayload(t *testing.T) {
	client := NewClient(Config{URL: "ws://localhost:1"})
	_, err := client.Request(context.Background(), "getLocation", []string{"not", "an", "object"})
	assert.Error(t, err)
}
