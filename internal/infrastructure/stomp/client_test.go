package stomp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellzy/pkg/errors"
)

// fakeBroker upgrades incoming connections, answers the STOMP handshake and
// exposes every later frame on a channel.
type fakeBroker struct {
	t        *testing.T
	frames   chan *Frame
	conns    chan *websocket.Conn
	connects chan *Frame
	dropAll  bool
	server   *httptest.Server
}

func newFakeBroker(t *testing.T, dropAll bool) *fakeBroker {
	b := &fakeBroker{
		t:        t,
		frames:   make(chan *Frame, 16),
		conns:    make(chan *websocket.Conn, 4),
		connects: make(chan *Frame, 4),
		dropAll:  dropAll,
	}
	upgrader := websocket.Upgrader{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		frame, err := Parse(data)
		if err != nil || frame == nil || frame.Command != CommandConnect {
			conn.Close()
			return
		}
		select {
		case b.connects <- frame:
		default:
		}

		ack := NewFrame(CommandConnected, map[string]string{"version": "1.2"})
		conn.WriteMessage(websocket.TextMessage, ack.Marshal())

		if b.dropAll {
			conn.Close()
			return
		}

		b.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				return
			}
			f, err := Parse(data)
			if err != nil || f == nil {
				continue
			}
			b.frames <- f
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBroker) endpoint() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func waitFrame(t *testing.T, frames chan *Frame) *Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func waitSignal(t *testing.T, signals chan struct{}, what string) {
	t.Helper()
	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestHandshakeSubscribeAndDispatch(t *testing.T) {
	broker := newFakeBroker(t, false)

	client := NewClient(broker.endpoint(), "Bearer token-123", 50*time.Millisecond)
	onConnect := make(chan struct{}, 4)
	client.Activate(context.Background(), Events{OnConnect: func() { onConnect <- struct{}{} }})
	defer client.Deactivate()

	waitSignal(t, onConnect, "connect callback")
	assert.True(t, client.Connected())

	connect := waitFrame(t, broker.connects)
	assert.Equal(t, "1.2", connect.Headers["accept-version"])
	assert.Equal(t, "Bearer token-123", connect.Headers["Authorization"])

	bodies := make(chan []byte, 1)
	require.NoError(t, client.Subscribe("/user/queue/chat/messages", func(body []byte) {
		bodies <- body
	}))

	subscribe := waitFrame(t, broker.frames)
	assert.Equal(t, CommandSubscribe, subscribe.Command)
	assert.Equal(t, "/user/queue/chat/messages", subscribe.Headers["destination"])
	require.NotEmpty(t, subscribe.Headers["id"])

	conn := <-broker.conns
	push := NewFrame(CommandMessage, map[string]string{
		"subscription": subscribe.Headers["id"],
		"destination":  "/user/queue/chat/messages",
	})
	push.Body = []byte(`{"id":"m1"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, push.Marshal()))

	select {
	case body := <-bodies:
		assert.JSONEq(t, `{"id":"m1"}`, string(body))
	case <-time.After(2 * time.Second):
		t.Fatal("subscription handler never fired")
	}
}

func TestDispatchFallsBackToDestination(t *testing.T) {
	broker := newFakeBroker(t, false)

	client := NewClient(broker.endpoint(), "Bearer token-123", 50*time.Millisecond)
	onConnect := make(chan struct{}, 4)
	client.Activate(context.Background(), Events{OnConnect: func() { onConnect <- struct{}{} }})
	defer client.Deactivate()
	waitSignal(t, onConnect, "connect callback")

	bodies := make(chan []byte, 1)
	require.NoError(t, client.Subscribe("/user/queue/chat/conversations", func(body []byte) {
		bodies <- body
	}))
	waitFrame(t, broker.frames)

	conn := <-broker.conns
	// No subscription header at all, only the destination.
	push := NewFrame(CommandMessage, map[string]string{
		"destination": "/user/queue/chat/conversations",
	})
	push.Body = []byte(`{"id":"c1"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, push.Marshal()))

	select {
	case body := <-bodies:
		assert.JSONEq(t, `{"id":"c1"}`, string(body))
	case <-time.After(2 * time.Second):
		t.Fatal("subscription handler never fired")
	}
}

func TestPublishWritesSendFrame(t *testing.T) {
	broker := newFakeBroker(t, false)

	client := NewClient(broker.endpoint(), "Bearer token-123", 50*time.Millisecond)
	onConnect := make(chan struct{}, 4)
	client.Activate(context.Background(), Events{OnConnect: func() { onConnect <- struct{}{} }})
	defer client.Deactivate()
	waitSignal(t, onConnect, "connect callback")

	require.NoError(t, client.Publish("/app/chat/send", []byte(`{"content":"hi"}`)))

	frame := waitFrame(t, broker.frames)
	assert.Equal(t, CommandSend, frame.Command)
	assert.Equal(t, "/app/chat/send", frame.Headers["destination"])
	assert.Equal(t, "application/json", frame.Headers["content-type"])
	assert.JSONEq(t, `{"content":"hi"}`, string(frame.Body))
}

func TestReconnectAfterDrop(t *testing.T) {
	broker := newFakeBroker(t, true)

	client := NewClient(broker.endpoint(), "Bearer token-123", 20*time.Millisecond)
	onConnect := make(chan struct{}, 8)
	client.Activate(context.Background(), Events{OnConnect: func() { onConnect <- struct{}{} }})
	defer client.Deactivate()

	// Every accepted connection is dropped right after the handshake, so a
	// second connect callback proves the retry loop is alive.
	waitSignal(t, onConnect, "first connect")
	waitSignal(t, onConnect, "reconnect")
}

func TestSubscribeAndPublishRequireConnection(t *testing.T) {
	client := NewClient("ws://127.0.0.1:0/ws", "Bearer token-123", time.Second)

	err := client.Subscribe("/user/queue/chat/messages", func([]byte) {})
	assert.True(t, errors.Is(err, "UNAVAILABLE"))

	err = client.Publish("/app/chat/send", nil)
	assert.True(t, errors.Is(err, "UNAVAILABLE"))
}

func TestDeactivateSerializesWithPublish(t *testing.T) {
	broker := newFakeBroker(t, false)

	client := NewClient(broker.endpoint(), "Bearer token-123", 50*time.Millisecond)
	onConnect := make(chan struct{}, 4)
	client.Activate(context.Background(), Events{OnConnect: func() { onConnect <- struct{}{} }})
	waitSignal(t, onConnect, "connect callback")

	// Hammer the writer while tearing down; the DISCONNECT write must not
	// interleave with these.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			client.Publish("/app/chat/send", []byte(`{"content":"x"}`))
		}
	}()

	client.Deactivate()
	<-done
	assert.False(t, client.Connected())
}

func TestDeactivateIsIdempotent(t *testing.T) {
	broker := newFakeBroker(t, false)

	client := NewClient(broker.endpoint(), "Bearer token-123", 50*time.Millisecond)
	onConnect := make(chan struct{}, 4)
	client.Activate(context.Background(), Events{OnConnect: func() { onConnect <- struct{}{} }})
	waitSignal(t, onConnect, "connect callback")

	client.Deactivate()
	client.Deactivate()
	assert.False(t, client.Connected())
}
