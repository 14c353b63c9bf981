// Package realtime keeps one live websocket connection to the chat backend
// and hands pushed messages to a single handler.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pookietalk/pookie/internal/models"
)

var (
	ErrAlreadyUsed  = errors.New("realtime: channel already connected or closed")
	ErrNotConnected = errors.New("realtime: channel not connected")
)

type State int

const (
	Unconnected State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

const closeWait = time.Second

// Channel is single use: once disconnected it cannot be reconnected; a new
// Channel must be created instead.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	handler func(models.ChatMessage)

	done chan struct{}
}

type Option func(*Channel)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the read loop has stopped. It never closes for a
// channel that did not connect.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Connect dials the backend. No credentials are attached to the handshake.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Unconnected {
		c.mu.Unlock()
		return ErrAlreadyUsed
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != Unconnected {
		// Disconnect or another Connect won the race.
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyUsed
	}
	c.state = Connected
	c.conn = conn
	c.mu.Unlock()

	c.logger.Debug("realtime connected", zap.String("url", c.url))
	go c.readLoop(conn)
	return nil
}

// OnMessage sets the handler for inbound chat messages, replacing any
// earlier one. Handlers run one at a time in wire order.
func (c *Channel) OnMessage(fn func(models.ChatMessage)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Disconnect closes the connection. Frames still in flight are dropped.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.state = Disconnected
	conn := c.conn
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	err := conn.Close()
	c.logger.Debug("realtime disconnected", zap.String("url", c.url))
	return err
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer close(c.done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == Connected {
				// Dropped by the peer; there is no reconnect.
				c.logger.Warn("realtime connection lost", zap.Error(err))
				c.mu.Lock()
				c.state = Disconnected
				c.mu.Unlock()
				conn.Close()
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("undecodable realtime frame", zap.Error(err))
			continue
		}
		if ev.Name != models.EventMessage {
			continue
		}
		var msg models.ChatMessage
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			c.logger.Warn("undecodable chat message", zap.Error(err))
			continue
		}

		c.mu.Lock()
		fn, live := c.handler, c.state == Connected
		c.mu.Unlock()
		if !live {
			return
		}
		if fn != nil {
			c.dispatch(fn, msg)
		}
	}
}

func (c *Channel) dispatch(fn func(models.ChatMessage), msg models.ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("realtime handler panicked", zap.Any("panic", r))
		}
	}()
	fn(msg)
}
