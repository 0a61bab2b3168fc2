package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wsServer accepts connections and hands them to the test.
type wsServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	auth  chan string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 4), auth: make(chan string, 4)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func TestClient_DispatchesEvents(t *testing.T) {
	srv := newWSServer(t)
	c := New(Config{URL: srv.wsURL(), Token: "secret"}, quietLogger())

	got := make(chan string, 4)
	c.On("product_verified", func(payload []byte) { got <- string(payload) })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	assert.Equal(t, "Bearer secret", <-srv.auth)
	assert.Equal(t, StatusConnected, c.State().Status)

	conn := srv.accept(t)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"other","data":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"product_verified","data":{"success":true}}`)))

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"success":true}`, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestClient_HandlersRunInOrder(t *testing.T) {
	srv := newWSServer(t)
	c := New(Config{URL: srv.wsURL()}, quietLogger())

	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	c.On("tick", func(payload []byte) {
		var n int
		_ = json.Unmarshal(payload, &n)
		mu.Lock()
		seen = append(seen, n)
		if len(seen) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	conn := srv.accept(t)
	defer conn.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, conn.WriteJSON(map[string]any{"event": "tick", "data": i}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not dispatched")
	}
	mu.Lock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	mu.Unlock()
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	srv := newWSServer(t)
	c := New(Config{URL: srv.wsURL(), ReconnectAttempts: 3, ReconnectDelay: 10 * time.Millisecond}, quietLogger())

	got := make(chan string, 1)
	c.On("product_verified", func(payload []byte) { got <- string(payload) })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	first := srv.accept(t)
	first.Close()

	second := srv.accept(t)
	defer second.Close()
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(`{"event":"product_verified","data":{"n":2}}`)))

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"n":2}`, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("event after reconnect not dispatched")
	}
	assert.Equal(t, StatusConnected, c.State().Status)
}

func TestClient_ConnectGivesUpAfterBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectAttempts: 2,
		ReconnectDelay:    5 * time.Millisecond,
	}, quietLogger())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StatusError, c.State().Status)

	// A failed connect leaves the client reusable.
	assert.NotErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
}

func TestClient_ConnectErrors(t *testing.T) {
	c := New(Config{}, quietLogger())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrNoURL)
	assert.NoError(t, c.Disconnect())

	srv := newWSServer(t)
	c = New(Config{URL: srv.wsURL()}, quietLogger())
	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(t, c.Disconnect())
	assert.Equal(t, StatusDisconnected, c.State().Status)
}

func TestClient_PanickingHandlerKeepsReading(t *testing.T) {
	srv := newWSServer(t)
	c := New(Config{URL: srv.wsURL()}, quietLogger())

	got := make(chan struct{}, 1)
	calls := 0
	c.On("e", func([]byte) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		got <- struct{}{}
	})

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	conn := srv.accept(t)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "e", "data": 1}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "e", "data": 2}))

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("second event not dispatched")
	}
}

func TestClient_Emit(t *testing.T) {
	srv := newWSServer(t)
	c := New(Config{URL: srv.wsURL()}, quietLogger())

	assert.Error(t, c.Emit("ping", nil), "emit before connect")

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	conn := srv.accept(t)
	defer conn.Close()

	require.NoError(t, c.Emit("process_json", map[string]string{"item_code": "A1"}))

	var env envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "process_json", env.Event)
	assert.JSONEq(t, `{"item_code":"A1"}`, string(env.Data))
}

func TestPublisher_Publish(t *testing.T) {
	var got []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewPublisher(srv.URL, "tok", srv.Client())
	err := p.Publish(context.Background(), []core.CanonicalRecord{
		{ItemCode: "A1", Name: "Paracetamol", Batch: "B1", MRP: decimal.RequireFromString("25.5"), Pack: "10", Expiry: "12/26"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]string{
		"item_code": "A1", "name": "Paracetamol", "Mrp": "25.5", "Batch": "B1", "Pack": "10", "Expiry": "12/26",
	}, got[0])
}

func TestPublisher_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewPublisher(srv.URL, "", nil).Publish(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
