// Package signalws is the WebSocket edge of the signaling protocol: one
// connection per client, a read pump dispatching validated requests into
// the coordinator and a write pump draining the peer's send buffer.
package signalws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/app"
	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const sendBuffer = 32

type Controller struct {
	Coord      *app.Coordinator
	Limiter    *JoinRateLimiter
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(coord *app.Coordinator, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		Coord:      coord,
		Limiter:    NewJoinRateLimiter(8, time.Minute),
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

// wsConn implements core.Notifier over one WebSocket.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// connState tracks which room this connection joined, for teardown.
type connState struct {
	pid  domain.PeerID
	conn *wsConn

	mu   sync.Mutex
	room domain.RoomID
}

func (st *connState) setRoom(id domain.RoomID) {
	st.mu.Lock()
	st.room = id
	st.mu.Unlock()
}

func (st *connState) currentRoom() domain.RoomID {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.room
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	pid := domain.PeerID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("peer", string(pid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	st := &connState{
		pid: pid,
		conn: &wsConn{
			conn: ws,
			send: make(chan core.Frame, sendBuffer),
		},
	}
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, st.conn)
	go ctl.readPump(ctx, cancel, st)
}
