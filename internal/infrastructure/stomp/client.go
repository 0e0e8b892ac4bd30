package stomp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sellzy/pkg/errors"
	"sellzy/pkg/logger"
)

// Events are the callbacks the session controller hooks into the transport.
// OnConnect fires after every successful connect, including reconnects;
// subscriptions do not survive a reconnect, so the handler must re-subscribe
// each time. OnError fires on dial failures, broker ERROR frames, and read
// failures.
type Events struct {
	OnConnect func()
	OnError   func(error)
}

// Client maintains the single persistent STOMP-over-WebSocket connection for
// an authenticated session. Reconnection is a fixed delay, no backoff.
type Client struct {
	endpoint       string
	connectHeader  http.Header
	reconnectDelay time.Duration

	events Events

	mu        sync.Mutex
	conn      *websocket.Conn
	subs      map[string]*subscription
	connected bool
	active    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type subscription struct {
	id          string
	destination string
	handler     func(body []byte)
}

func NewClient(endpoint, bearer string, reconnectDelay time.Duration) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	header := http.Header{}
	if bearer != "" {
		header.Set("Authorization", bearer)
	}
	return &Client{
		endpoint:       endpoint,
		connectHeader:  header,
		reconnectDelay: reconnectDelay,
		subs:           make(map[string]*subscription),
	}
}

// Activate starts the connect loop. It returns immediately; connection state
// is reported through the event callbacks.
func (c *Client) Activate(ctx context.Context, events Events) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.events = events
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx)
}

// Deactivate tears the connection down and stops the reconnect loop. The
// connection handle is released; a later Activate starts fresh.
func (c *Client) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel := c.cancel
	done := c.done
	conn := c.conn
	// Written while still holding the mutex: Publish and Subscribe write
	// under it too, and the connection allows only one writer at a time.
	if conn != nil {
		frame := NewFrame(CommandDisconnect, nil)
		conn.WriteMessage(websocket.TextMessage, frame.Marshal())
	}
	c.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.conn = nil
	c.connected = false
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()
}

// Connected reports whether a live broker connection exists right now.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe registers a handler for a destination on the current connection.
func (c *Client) Subscribe(destination string, handler func(body []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return errors.Unavailable("not connected to chat broker", nil)
	}

	sub := &subscription{
		id:          uuid.New().String(),
		destination: destination,
		handler:     handler,
	}

	frame := NewFrame(CommandSubscribe, map[string]string{
		"id":          sub.id,
		"destination": destination,
		"ack":         "auto",
	})
	if err := c.conn.WriteMessage(websocket.TextMessage, frame.Marshal()); err != nil {
		return errors.Unavailable("failed to subscribe", err)
	}

	c.subs[sub.id] = sub
	return nil
}

// Publish sends a frame to an application destination.
func (c *Client) Publish(destination string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return errors.Unavailable("not connected to chat broker", nil)
	}

	frame := NewFrame(CommandSend, map[string]string{
		"destination":  destination,
		"content-type": "application/json",
	})
	frame.Body = body

	if err := c.conn.WriteMessage(websocket.TextMessage, frame.Marshal()); err != nil {
		return errors.Unavailable("failed to publish", err)
	}
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connectOnce(ctx); err != nil {
			c.reportError(err)
		}

		if ctx.Err() != nil {
			return
		}

		select {
		case <-time.After(c.reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// connectOnce dials, performs the STOMP handshake, and pumps inbound frames
// until the connection dies.
func (c *Client) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return errors.Unavailable("failed to dial chat broker", err)
	}

	connect := NewFrame(CommandConnect, map[string]string{
		"accept-version": "1.2",
		"heart-beat":     "0,0",
	})
	if auth := c.connectHeader.Get("Authorization"); auth != "" {
		connect.Headers["Authorization"] = auth
	}
	if err := conn.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		conn.Close()
		return errors.Unavailable("failed to send CONNECT", err)
	}

	frame, err := c.readFrame(conn)
	if err != nil {
		conn.Close()
		return errors.Unavailable("failed to read connect ack", err)
	}
	if frame == nil || frame.Command != CommandConnected {
		conn.Close()
		return errors.Unavailable("broker refused connection", nil)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()

	logger.Info("Connected to chat broker at %s", c.endpoint)
	if c.events.OnConnect != nil {
		c.events.OnConnect()
	}

	err = c.readPump(conn)

	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
	return err
}

func (c *Client) readPump(conn *websocket.Conn) error {
	for {
		frame, err := c.readFrame(conn)
		if err != nil {
			return errors.Unavailable("chat broker connection lost", err)
		}
		if frame == nil {
			continue // heart-beat
		}

		switch frame.Command {
		case CommandMessage:
			c.dispatch(frame)
		case CommandError:
			logger.Error("Broker error frame: %s", string(frame.Body))
			return errors.Unavailable("broker reported an error", nil)
		default:
			logger.Debug("Ignoring frame %s", frame.Command)
		}
	}
}

func (c *Client) dispatch(frame *Frame) {
	subID := frame.Headers["subscription"]

	c.mu.Lock()
	sub, ok := c.subs[subID]
	if !ok {
		// Fall back to destination matching for brokers that do not echo
		// the subscription id.
		for _, candidate := range c.subs {
			if candidate.destination == frame.Headers["destination"] {
				sub, ok = candidate, true
				break
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		logger.Warn("Message for unknown subscription %q", subID)
		return
	}
	sub.handler(frame.Body)
}

func (c *Client) readFrame(conn *websocket.Conn) (*Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (c *Client) reportError(err error) {
	logger.Warn("Chat transport: %v", err)
	if c.events.OnError != nil {
		c.events.OnError(err)
	}
}
