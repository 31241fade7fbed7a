// Package channel provides the WebSocket event channel between the console and the chat server.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/livedesk/internal/config"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/protocol"
	"github.com/xiaot623/livedesk/pkg/logger"
)

var (
	// ErrNotConnected is returned by Send when no connection is open.
	ErrNotConnected = errors.New("channel not connected")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrAlreadyStarted is returned when Connect is called twice on one client.
	ErrAlreadyStarted = errors.New("channel already started")
)

// Options configures one connection.
type Options struct {
	URL              string
	OperatorID       string
	Credential       string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	MaxMessageSize   int64
	SendBufferSize   int
}

// OptionsFromConfig builds connection options from the console configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:              cfg.Channel.URL,
		OperatorID:       cfg.Operator.ID,
		Credential:       cfg.Operator.Token,
		HandshakeTimeout: config.Ms(cfg.Channel.HandshakeTimeoutMs),
		PingInterval:     config.Ms(cfg.Channel.PingIntervalMs),
		WriteTimeout:     config.Ms(cfg.Channel.WriteTimeoutMs),
		ReadTimeout:      config.Ms(cfg.Channel.ReadTimeoutMs),
		MaxMessageSize:   cfg.Channel.MaxMessageSize,
		SendBufferSize:   cfg.Channel.SendBufferSize,
	}
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 20 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 65536
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 64
	}
	return o
}

type eventSub struct {
	id int
	fn func(domain.Event)
}

type lifecycleSub struct {
	id int
	fn func(domain.Lifecycle)
}

// Client is a single connection generation. It never reconnects on its own;
// see Supervisor for that.
type Client struct {
	opts Options
	log  *logger.Logger

	mu        sync.Mutex
	started   bool
	connected bool
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	subMu      sync.Mutex
	nextID     int
	events     []eventSub
	lifecycles []lifecycleSub

	// deliverMu is held while a listener runs. Listeners must not call Close.
	deliverMu sync.Mutex
	muted     bool
}

// New creates a client. Nothing is dialed until Connect.
func New(opts Options, log *logger.Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts: opts,
		log:  log.Named("channel"),
		send: make(chan []byte, opts.SendBufferSize),
		done: make(chan struct{}),
	}
}

// Subscribe registers fn for inbound events. Events are delivered one at a
// time in arrival order.
func (c *Client) Subscribe(fn func(domain.Event)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextID++
	id := c.nextID
	c.events = append(c.events, eventSub{id: id, fn: fn})
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.events {
			if s.id == id {
				c.events = append(c.events[:i:i], c.events[i+1:]...)
				return
			}
		}
	}
}

// OnLifecycle registers fn for connection signals.
func (c *Client) OnLifecycle(fn func(domain.Lifecycle)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextID++
	id := c.nextID
	c.lifecycles = append(c.lifecycles, lifecycleSub{id: id, fn: fn})
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.lifecycles {
			if s.id == id {
				c.lifecycles = append(c.lifecycles[:i:i], c.lifecycles[i+1:]...)
				return
			}
		}
	}
}

// Connect dials the server, identifies the operator and starts the pumps.
// It may be called once per client.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		err = fmt.Errorf("failed to dial %s: %w", c.opts.URL, err)
		c.teardown(err)
		return err
	}

	identify, err := protocol.Encode(&protocol.Identify{
		OperatorID: c.opts.OperatorID,
		Credential: c.opts.Credential,
	})
	if err != nil {
		conn.Close()
		c.teardown(err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, identify); err != nil {
		conn.Close()
		err = fmt.Errorf("failed to send identify: %w", err)
		c.teardown(err)
		return err
	}

	conn.SetReadLimit(c.opts.MaxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log.Info("Channel connected",
		logger.String("url", c.opts.URL),
		logger.String("operator_id", c.opts.OperatorID))
	c.emitLifecycle(domain.LifecycleConnected, nil)

	go c.writePump(conn)
	go c.readPump(conn)
	return nil
}

// Connected reports whether the connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send queues cmd for transmission without blocking.
func (c *Client) Send(cmd protocol.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}

	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Done is closed once the connection is torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close emits disconnected, unregisters every listener and closes the socket.
// No listener runs after Close returns.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if connected && conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
	}
	c.teardown(nil)

	c.deliverMu.Lock()
	c.muted = true
	c.deliverMu.Unlock()

	c.subMu.Lock()
	c.events = nil
	c.lifecycles = nil
	c.subMu.Unlock()
	return nil
}

// readPump reads frames and delivers decoded events.
func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally.
				c.teardown(nil)
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info("Channel closed by server", logger.Error(err))
				} else {
					c.log.Warn("Channel read failed", logger.Error(err))
				}
				c.teardown(fmt.Errorf("read failed: %w", err))
			}
			return
		}

		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			c.log.Warn("Skipping undecodable frame", logger.Error(err))
			continue
		}
		c.deliver(ev)
	}
}

// writePump drains the send queue and keeps the connection alive.
func (c *Client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("Channel write failed", logger.Error(err))
				c.teardown(fmt.Errorf("write failed: %w", err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.teardown(fmt.Errorf("ping failed: %w", err))
				return
			}

		case <-c.done:
			return
		}
	}
}

// teardown runs once per client. A non-nil cause is reported as an error
// signal before the disconnected signal.
func (c *Client) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		wasConnected := c.connected
		c.connected = false
		conn := c.conn
		c.mu.Unlock()

		if cause != nil {
			c.emitLifecycle(domain.LifecycleError, cause)
		}
		if wasConnected {
			c.emitLifecycle(domain.LifecycleDisconnected, nil)
			c.log.Info("Channel disconnected", logger.String("url", c.opts.URL))
		}

		close(c.done)
		if conn != nil {
			conn.Close()
		}
	})
}

func (c *Client) deliver(ev domain.Event) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.muted {
		return
	}

	c.subMu.Lock()
	subs := append([]eventSub(nil), c.events...)
	c.subMu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func (c *Client) emitLifecycle(state domain.LifecycleState, err error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.muted {
		return
	}

	c.subMu.Lock()
	subs := append([]lifecycleSub(nil), c.lifecycles...)
	c.subMu.Unlock()

	sig := domain.Lifecycle{State: state, Err: err, At: time.Now()}
	for _, s := range subs {
		s.fn(sig)
	}
}
