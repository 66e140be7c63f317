// Package client is the session side of the signaling protocol: a
// request/response WebSocket connection, a device capability model and the
// per-peer stream bookkeeping that turns consume round-trips into playable
// streams.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/signal"
)

const (
	connWriteWait      = 10 * time.Second
	connMaxMessageSize = 64 * 1024
)

var ErrConnClosed = errors.New("signaling connection closed")

// ServerError is a structured error reply from the coordinator.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Conn multiplexes concurrent requests over one WebSocket, correlating
// replies by rid. Notifications are handed to the OnNotify callback.
type Conn struct {
	ws     *websocket.Conn
	notify func(signal.Envelope)

	writeMu sync.Mutex
	nextRID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan signal.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the server's signaling endpoint.
func Dial(ctx context.Context, serverURL string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	ws.SetReadLimit(connMaxMessageSize)

	return &Conn{
		ws:      ws,
		pending: make(map[uint64]chan signal.Envelope),
		done:    make(chan struct{}),
	}, nil
}

// OnNotify registers the notification handler. Must be called before Start.
// The handler runs on the read loop; it must not issue requests inline.
func (c *Conn) OnNotify(fn func(signal.Envelope)) {
	c.notify = fn
}

// Start launches the read loop.
func (c *Conn) Start() {
	go c.readPump()
}

func (c *Conn) readPump() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad frame from server")
			continue
		}
		switch env.Type {
		case signal.TypeResponse, signal.TypeError:
			c.deliver(env)
		default:
			if c.notify != nil {
				c.notify(env)
			}
		}
	}
}

func (c *Conn) deliver(env signal.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.RID]
	if ok {
		delete(c.pending, env.RID)
	}
	c.mu.Unlock()
	if ok {
		ch <- env
	}
}

// Request sends one request and waits for the matching reply.
func (c *Conn) Request(ctx context.Context, t signal.MessageType, payload any) (json.RawMessage, error) {
	rid := c.nextRID.Add(1)
	frame, err := signal.Encode(t, rid, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan signal.Envelope, 1)
	c.mu.Lock()
	c.pending[rid] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(connWriteWait))
	err = c.ws.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.drop(rid)
		return nil, fmt.Errorf("send %s: %w", t, err)
	}

	select {
	case env := <-ch:
		if env.Type == signal.TypeError {
			var p signal.ErrorPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return nil, fmt.Errorf("%s failed with unreadable error: %w", t, err)
			}
			return nil, &ServerError{Code: p.Code, Message: p.Message}
		}
		return env.Payload, nil
	case <-ctx.Done():
		c.drop(rid)
		return nil, ctx.Err()
	case <-c.done:
		c.drop(rid)
		return nil, ErrConnClosed
	}
}

func (c *Conn) drop(rid uint64) {
	c.mu.Lock()
	delete(c.pending, rid)
	c.mu.Unlock()
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
