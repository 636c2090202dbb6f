package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jagawarga/jagawarga/internal/pkg/constants"
	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/pkg/retry"
)

// State is the connection lifecycle state.
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

var (
	// ErrNotConnected is returned when emitting on a channel that has no
	// live connection.
	ErrNotConnected = errors.New("event channel not connected")
	// ErrChannelClosed is returned once Disconnect has been called.
	ErrChannelClosed = errors.New("event channel closed")
	// ErrReconnectExhausted means automatic reconnection gave up. The
	// channel stays offline; no further automatic retry happens.
	ErrReconnectExhausted = errors.New("event channel reconnect attempts exhausted")
)

// Handler is invoked for every unsolicited message published on a topic.
type Handler func(data json.RawMessage)

// Config holds event channel configuration.
type Config struct {
	URL string
	// Token, when set, is sent as a bearer Authorization header on dial.
	Token string
	// ReconnectAttempts caps automatic reconnection. Zero uses the default.
	ReconnectAttempts int
	// RequestTimeout bounds Request when the caller's context has no
	// deadline of its own.
	RequestTimeout time.Duration
	// OnStateChange, when set, observes every connection state transition.
	OnStateChange func(State)
}

// Client is a long-lived duplex connection to the notification backend over
// a topic model. Replies to requests share their topic with all other
// traffic, so requests carry a generated correlation id and each reply is
// routed to the one pending request it answers; everything else goes to the
// registered topic handlers.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	retrier *retry.Retrier

	state atomic.Int32

	mu     sync.Mutex // guards conn and closed
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex

	hmu      sync.RWMutex
	handlers map[string][]Handler

	pmu     sync.Mutex
	pending map[string]chan json.RawMessage
}

// NewClient creates an event channel client. The channel is not connected
// until Connect is called.
func NewClient(cfg Config) *Client {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = constants.MaxReconnectAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retrier: retry.New(retry.Config{
			MaxAttempts: cfg.ReconnectAttempts,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		}),
		handlers: make(map[string][]Handler),
		pending:  make(map[string]chan json.RawMessage),
	}
}

// Connect dials the backend and starts the read loop. It transitions
// Disconnected -> Connecting -> Connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to connect event channel: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrChannelClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	logger.Info("Event channel connected", logger.String("url", c.cfg.URL))

	go c.readLoop(conn)
	return nil
}

// On registers a handler for unsolicited messages on the given topic.
// Registrations survive automatic reconnects.
func (c *Client) On(topic string, handler Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[topic] = append(c.handlers[topic], handler)
}

// Emit publishes a payload on a topic. Fire-and-forget: no reply is awaited.
func (c *Client) Emit(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	msg := models.WSMessage{Event: topic, Data: data}

	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrChannelClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to emit on topic %s: %w", topic, err)
	}
	return nil
}

// Request emits a payload on a topic and waits for the reply carrying the
// same generated correlation id. The payload must encode to a JSON object.
func (c *Client) Request(ctx context.Context, topic string, payload interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request payload: %w", err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("request payload must be a JSON object: %w", err)
	}

	correlationID := uuid.NewString()
	obj["correlationId"] = correlationID

	reply := make(chan json.RawMessage, 1)
	c.pmu.Lock()
	c.pending[correlationID] = reply
	c.pmu.Unlock()
	defer c.removePending(correlationID)

	if err := c.Emit(topic, obj); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	select {
	case data, ok := <-reply:
		if !ok {
			return nil, ErrReconnectExhausted
		}
		return data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request on topic %s: %w", topic, ctx.Err())
	}
}

// Disconnect closes the connection, releases all handlers and fails pending
// requests. Safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.hmu.Lock()
	c.handlers = make(map[string][]Handler)
	c.hmu.Unlock()

	c.failPending()
	c.setState(StateDisconnected)
	logger.Info("Event channel disconnected")
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			logger.Warn("Event channel read failed, reconnecting", logger.Err(err))
			conn.Close()

			next, rerr := c.reconnect()
			if rerr != nil {
				return
			}
			conn = next
			continue
		}
		c.dispatch(data)
	}
}

// reconnect redials with bounded backoff. Handler registrations are kept so
// a transient drop does not silently stop delivery.
func (c *Client) reconnect() (*websocket.Conn, error) {
	c.setState(StateConnecting)

	var conn *websocket.Conn
	err := c.retrier.Execute(context.Background(), func(ctx context.Context) error {
		if c.isClosed() {
			return ErrChannelClosed
		}
		next, err := c.dial(ctx)
		if err != nil {
			return err
		}
		conn = next
		return nil
	})
	if err != nil {
		c.setState(StateDisconnected)
		c.failPending()
		logger.Error("Event channel offline, giving up",
			logger.Err(ErrReconnectExhausted),
			logger.Int("attempts", c.cfg.ReconnectAttempts))
		return nil, ErrReconnectExhausted
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, ErrChannelClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	logger.Info("Event channel reconnected", logger.String("url", c.cfg.URL))
	return conn, nil
}

func (c *Client) dispatch(data []byte) {
	var msg models.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("Dropping malformed event channel message", logger.Err(err))
		return
	}

	// A correlated payload answers exactly one pending request. Correlated
	// replies whose request is gone are stale and get dropped rather than
	// fanned out to topic handlers.
	var meta struct {
		CorrelationID string `json:"correlationId"`
	}
	if json.Unmarshal(msg.Data, &meta) == nil && meta.CorrelationID != "" {
		if reply := c.takePending(meta.CorrelationID); reply != nil {
			reply <- msg.Data
			return
		}
		logger.Debug("Dropping reply for expired request",
			logger.String("topic", msg.Event),
			logger.String("correlation_id", meta.CorrelationID))
		return
	}

	c.hmu.RLock()
	handlers := make([]Handler, len(c.handlers[msg.Event]))
	copy(handlers, c.handlers[msg.Event])
	c.hmu.RUnlock()

	for _, h := range handlers {
		h(msg.Data)
	}
}

func (c *Client) takePending(correlationID string) chan json.RawMessage {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	reply, ok := c.pending[correlationID]
	if !ok {
		return nil
	}
	delete(c.pending, correlationID)
	return reply
}

func (c *Client) removePending(correlationID string) {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	delete(c.pending, correlationID)
}

func (c *Client) failPending() {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}
