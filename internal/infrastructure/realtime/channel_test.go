package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/pkg/config"
)

var upgrader = websocket.Upgrader{}

type wsHarness struct {
	srv    *httptest.Server
	mu     sync.Mutex
	conns  []*websocket.Conn
	frames chan map[string]json.RawMessage
}

// newWSHarness runs a websocket endpoint that records every inbound frame.
func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	h := &wsHarness{frames: make(chan map[string]json.RawMessage, 16)}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()

		for {
			var frame map[string]json.RawMessage
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			h.frames <- frame
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *wsHarness) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *wsHarness) push(t *testing.T, ev Event) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.conns)
	require.NoError(t, h.conns[len(h.conns)-1].WriteJSON(ev))
}

func (h *wsHarness) nextFrame(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	select {
	case frame := <-h.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func waitForState(t *testing.T, ch *Channel, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("channel never reached state %s (currently %s)", want, ch.State())
}

func TestConnectSendsHandshakeThenAuthenticates(t *testing.T) {
	h := newWSHarness(t)
	ch := NewChannel(h.url(), func() string { return "jwt-access" }, logging.NewTestLogger())
	defer ch.Close()

	require.NoError(t, ch.Connect())
	waitForState(t, ch, StateConnected)

	hello := h.nextFrame(t)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(hello["auth"], &auth))
	assert.Equal(t, "jwt-access", auth.Token)

	authEvent := h.nextFrame(t)
	var eventName string
	require.NoError(t, json.Unmarshal(authEvent["event"], &eventName))
	assert.Equal(t, string(EventAuthenticate), eventName)
}

func TestDuplicateConnectIsANoOp(t *testing.T) {
	h := newWSHarness(t)
	ch := NewChannel(h.url(), func() string { return "jwt" }, logging.NewTestLogger())
	defer ch.Close()

	require.NoError(t, ch.Connect())
	waitForState(t, ch, StateConnected)
	require.NoError(t, ch.Connect())

	time.Sleep(100 * time.Millisecond)
	h.mu.Lock()
	assert.Len(t, h.conns, 1)
	h.mu.Unlock()
}

func TestInboundEventsReachHandlers(t *testing.T) {
	h := newWSHarness(t)
	ch := NewChannel(h.url(), func() string { return "jwt" }, logging.NewTestLogger())
	defer ch.Close()

	received := make(chan Event, 1)
	ch.OnEvent(func(ev Event) {
		if ev.Type == EventCaseUpdated {
			received <- ev
		}
	})

	require.NoError(t, ch.Connect())
	waitForState(t, ch, StateConnected)

	pushed, err := NewEvent(EventCaseUpdated, map[string]string{"caseId": "KDH/2024/100"})
	require.NoError(t, err)
	h.push(t, pushed)

	select {
	case ev := <-received:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, "KDH/2024/100", payload["caseId"])
	case <-time.After(2 * time.Second):
		t.Fatal("inbound event never dispatched")
	}
}

func TestEmitDeliversOutboundEvent(t *testing.T) {
	h := newWSHarness(t)
	ch := NewChannel(h.url(), func() string { return "jwt" }, logging.NewTestLogger())
	defer ch.Close()

	require.NoError(t, ch.Connect())
	waitForState(t, ch, StateConnected)
	h.nextFrame(t) // handshake
	h.nextFrame(t) // authenticate

	require.NoError(t, ch.Emit(EventChatSend, map[string]string{"body": "adjourned to Monday"}))

	frame := h.nextFrame(t)
	var eventName string
	require.NoError(t, json.Unmarshal(frame["event"], &eventName))
	assert.Equal(t, string(EventChatSend), eventName)
}

func TestEmitWhileDisconnectedFails(t *testing.T) {
	ch := NewChannel("ws://localhost:1", func() string { return "jwt" }, logging.NewTestLogger())
	err := ch.Emit(EventChatSend, map[string]string{"body": "hello"})
	assert.Error(t, err)
}

func TestBoundedRetriesThenDisconnected(t *testing.T) {
	oldAttempts, oldDelay := config.ReconnectAttempts, config.ReconnectDelay
	config.ReconnectAttempts, config.ReconnectDelay = 2, 10*time.Millisecond
	defer func() {
		config.ReconnectAttempts, config.ReconnectDelay = oldAttempts, oldDelay
	}()

	ch := NewChannel("ws://127.0.0.1:1/socket", func() string { return "jwt" }, logging.NewTestLogger())
	defer ch.Close()

	require.NoError(t, ch.Connect())
	waitForState(t, ch, StateDisconnected)
}

func TestHandshakeFailureSettlesThenReconnects(t *testing.T) {
	oldAttempts, oldDelay := config.ReconnectAttempts, config.ReconnectDelay
	config.ReconnectAttempts, config.ReconnectDelay = 2, 10*time.Millisecond
	defer func() {
		config.ReconnectAttempts, config.ReconnectDelay = oldAttempts, oldDelay
	}()

	serverConns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	defer srv.Close()

	// The token provider runs just before the handshake frame goes out.
	// While failHandshake is set it resets the server side of the freshly
	// dialed socket, so that write fails on every attempt.
	var failHandshake atomic.Bool
	failHandshake.Store(true)
	token := func() string {
		if failHandshake.Load() {
			select {
			case conn := <-serverConns:
				if tcp, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
					tcp.SetLinger(0)
				}
				conn.Close()
				time.Sleep(100 * time.Millisecond)
			case <-time.After(2 * time.Second):
			}
		}
		return "jwt"
	}

	ch := NewChannel("ws"+strings.TrimPrefix(srv.URL, "http"), token, logging.NewTestLogger())
	defer ch.Close()

	require.NoError(t, ch.Connect())
	waitForState(t, ch, StateDisconnected)

	failHandshake.Store(false)
	require.NoError(t, ch.Reconnect())
	waitForState(t, ch, StateConnected)
}

func TestReconnectAfterLoginDialsWithFreshToken(t *testing.T) {
	h := newWSHarness(t)

	var mu sync.Mutex
	token := "before-login"
	ch := NewChannel(h.url(), func() string {
		mu.Lock()
		defer mu.Unlock()
		return token
	}, logging.NewTestLogger())
	defer ch.Close()

	require.NoError(t, ch.Connect())
	waitForState(t, ch, StateConnected)
	h.nextFrame(t)
	h.nextFrame(t)

	mu.Lock()
	token = "after-login"
	mu.Unlock()
	require.NoError(t, ch.Reconnect())
	waitForState(t, ch, StateConnected)

	hello := h.nextFrame(t)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(hello["auth"], &auth))
	assert.Equal(t, "after-login", auth.Token)
}
