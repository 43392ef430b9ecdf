// Package realtime keeps a websocket connection to the push gateway and relays
// domain events to connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tallybook/pkg/logger"
)

var (
	// ErrNotConnected is returned by Publish while no connection is open.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrReconnectExhausted is returned by Run after MaxAttempts consecutive failed dials.
	ErrReconnectExhausted = errors.New("realtime: reconnect attempts exhausted")
)

// ActionSendMessage is the gateway route for outgoing messages.
const ActionSendMessage = "sendMessage"

// Config configures the connection manager.
type Config struct {
	URL            string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    uint
	WriteTimeout   time.Duration
}

// DefaultConfig returns the gateway defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    10,
		WriteTimeout:   5 * time.Second,
	}
}

// Message is the JSON frame exchanged with the gateway.
type Message struct {
	Action  string          `json:"action,omitempty"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// route picks the subscription key of an incoming message.
func (m Message) route() string {
	switch {
	case m.Type != "":
		return m.Type
	case m.Action != "":
		return m.Action
	}
	return "message"
}

// Handler receives incoming messages. It runs on the read loop and must not block.
type Handler func(ctx context.Context, msg Message)

// Client is the connection manager. Run owns the connection lifecycle;
// Publish and Subscribe are safe to call from any goroutine.
type Client struct {
	cfg Config

	mu   sync.RWMutex
	conn *websocket.Conn

	subMu  sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
}

// New creates a client. Nothing is dialled until Run.
func New(cfg Config) *Client {
	def := DefaultConfig(cfg.URL)
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Client{
		cfg:  cfg,
		subs: make(map[string]map[uint64]Handler),
	}
}

// Run dials the gateway and keeps reconnecting with jittered exponential backoff
// until ctx is done (returns nil) or MaxAttempts dials in a row fail.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff

	var failures uint
	for {
		connected, err := c.serve(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
			b.Reset()
			logger.Warn(ctx, "realtime connection lost", "url", c.cfg.URL, "error", err)
		} else {
			failures++
			logger.Warn(ctx, "realtime dial failed",
				"url", c.cfg.URL,
				"attempt", failures,
				"max_attempts", c.cfg.MaxAttempts,
				"error", err,
			)
			if failures >= c.cfg.MaxAttempts {
				return ErrReconnectExhausted
			}
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// serve dials once and reads until the connection drops.
func (c *Client) serve(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	c.setConn(conn)
	logger.Info(ctx, "realtime connected", "url", c.cfg.URL)

	defer func() {
		c.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return true, err
		}
		c.dispatch(ctx, msg)
	}
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Publish sends msg, defaulting its action to sendMessage. It never queues:
// without a connection it fails with ErrNotConnected.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if msg.Action == "" {
		msg.Action = ActionSendMessage
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		return fmt.Errorf("realtime publish %s: %w", msg.Type, err)
	}
	return nil
}

// Subscribe registers h for messages routed to key and returns its unsubscribe func.
func (c *Client) Subscribe(key string, h Handler) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextID++
	id := c.nextID
	if c.subs[key] == nil {
		c.subs[key] = make(map[uint64]Handler)
	}
	c.subs[key][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			delete(c.subs[key], id)
			if len(c.subs[key]) == 0 {
				delete(c.subs, key)
			}
		})
	}
}

func (c *Client) dispatch(ctx context.Context, msg Message) {
	c.subMu.RLock()
	handlers := make([]Handler, 0, len(c.subs[msg.route()]))
	for _, h := range c.subs[msg.route()] {
		handlers = append(handlers, h)
	}
	c.subMu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}
