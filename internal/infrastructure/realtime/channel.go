package realtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/pkg/config"
)

// State is the channel's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TokenProvider supplies the current bearer credential at dial time.
type TokenProvider func() string

// handshake is the first frame written after the websocket opens.
type handshake struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

// Channel is the single realtime connection of a session. Duplicate Connect
// calls while one is pending or open are no-ops.
type Channel struct {
	url    string
	token  TokenProvider
	dialer *websocket.Dialer
	logger *logging.ChanneledLogger

	attempts int
	delay    time.Duration

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	send       chan Event
	quit       chan struct{}
	generation int
	closed     bool

	handlers  []func(Event)
	stateSubs []func(State)
}

func NewChannel(url string, token TokenProvider, logger *logging.ChanneledLogger) *Channel {
	return &Channel{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		attempts: config.ReconnectAttempts,
		delay:    config.ReconnectDelay,
		logger:   logger,
	}
}

// OnEvent registers an inbound event handler. Handlers are invoked from the
// read loop goroutine, one event at a time.
func (c *Channel) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// OnStateChange registers a connection state observer.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubs = append(c.stateSubs, fn)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts connecting in the background. A no-op when already
// connecting or connected.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("channel closed")
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	subs := append([]func(State){}, c.stateSubs...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(StateConnecting)
	}

	go c.connectLoop()
	return nil
}

// Reconnect tears down any open connection and dials again with the current
// credential. Used after login and after a token refresh.
func (c *Channel) Reconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("channel closed")
	}
	if c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.teardownConnLocked()
	c.state = StateConnecting
	subs := append([]func(State){}, c.stateSubs...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(StateConnecting)
	}

	go c.connectLoop()
	return nil
}

// teardownConnLocked closes the live connection and releases its write loop.
// Callers must hold c.mu.
func (c *Channel) teardownConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	c.generation++
}

// Close shuts the channel down for good.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.teardownConnLocked()
	c.mu.Unlock()

	c.setState(StateDisconnected)
}

// connectLoop makes bounded connection attempts, then settles disconnected
// and leaves resync to the polling fallback until the next explicit trigger.
// A dial that succeeds but cannot complete the handshake counts as a failed
// attempt; the loop never exits while the state is still connecting.
func (c *Channel) connectLoop() {
	for attempt := 1; attempt <= c.attempts; attempt++ {
		c.mu.Lock()
		if c.closed || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err == nil {
			if c.establish(conn) {
				return
			}
			conn.Close()
			err = errors.New("handshake failed")
		}

		c.logger.Realtime().Warn("Connection attempt failed",
			"attempt", attempt, "maxAttempts", c.attempts, "error", err.Error())

		if attempt < c.attempts {
			time.Sleep(c.delay)
		}
	}

	c.logger.Realtime().Error("Giving up on realtime connection, relying on polling fallback")
	c.setState(StateDisconnected)
}

// establish promotes a dialed connection to connected and re-sends
// authentication: the transport handshake credential alone does not attach
// the application-level session.
func (c *Channel) establish(conn *websocket.Conn) bool {
	var hello handshake
	hello.Auth.Token = c.token()
	if err := conn.WriteJSON(hello); err != nil {
		c.logger.Realtime().Warn("Handshake write failed", "error", err.Error())
		return false
	}

	c.mu.Lock()
	if c.closed || c.state != StateConnecting {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.generation++
	gen := c.generation
	c.send = make(chan Event, config.SendBufferSize)
	c.quit = make(chan struct{})
	sendCh, quitCh := c.send, c.quit
	c.state = StateConnected
	subs := append([]func(State){}, c.stateSubs...)
	c.mu.Unlock()

	c.logger.Realtime().Info("Channel connected", "url", c.url)
	for _, fn := range subs {
		fn(StateConnected)
	}

	go c.writeLoop(conn, sendCh, quitCh, gen)
	go c.readLoop(conn, gen)

	if err := c.Emit(EventAuthenticate, map[string]string{"token": c.token()}); err != nil {
		c.logger.Realtime().Warn("Authenticate emit failed", "error", err.Error())
	}
	return true
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Realtime().Error("Panic recovered in read loop", "error", fmt.Sprint(r))
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			c.connLost(gen, err)
			return
		}

		c.mu.Lock()
		handlers := append([]func(Event){}, c.handlers...)
		c.mu.Unlock()

		for _, fn := range handlers {
			fn(ev)
		}
	}
}

func (c *Channel) writeLoop(conn *websocket.Conn, send <-chan Event, quit <-chan struct{}, gen int) {
	for {
		select {
		case <-quit:
			return
		case ev := <-send:
			if err := conn.WriteJSON(ev); err != nil {
				c.connLost(gen, err)
				return
			}
		}
	}
}

// connLost handles an established connection dropping. The first loop to
// notice wins; the channel re-enters connecting with the same bounded retry.
func (c *Channel) connLost(gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.logger.Realtime().Warn("Connection lost", "error", err.Error())
	c.teardownConnLocked()
	c.state = StateConnecting
	subs := append([]func(State){}, c.stateSubs...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(StateConnecting)
	}

	go c.connectLoop()
}

// Emit sends an outbound event, fire-and-forget. Delivery confirmation, if
// any, arrives as a separate inbound event.
func (c *Channel) Emit(t EventType, payload any) error {
	ev, err := NewEvent(t, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", t, err)
	}

	c.mu.Lock()
	if c.state != StateConnected || c.send == nil {
		c.mu.Unlock()
		return fmt.Errorf("channel not connected (state %s)", c.state)
	}
	send := c.send
	c.mu.Unlock()

	select {
	case send <- ev:
		return nil
	default:
		c.logger.Realtime().Warn("Send buffer full, event dropped", "event", string(t))
		return errors.New("send buffer full")
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	subs := append([]func(State){}, c.stateSubs...)
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(s)
	}
}
