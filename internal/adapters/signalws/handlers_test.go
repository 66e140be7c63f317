package signalws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/huddle/internal/app"
	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
	"github.com/avolkov/huddle/internal/media/memory"
	"github.com/avolkov/huddle/internal/signal"
)

func newTestController() *Controller {
	coord := app.NewCoordinator(core.NewRegistry(), memory.NewEngine(memory.Options{}), media.TransportOptions{
		ListenIP:  "127.0.0.1",
		EnableUDP: true,
	}, time.Second)
	return NewController(coord, 0, time.Minute)
}

func joinEnvelope(t *testing.T, room string, rid uint64) signal.Envelope {
	t.Helper()
	payload, err := json.Marshal(signal.JoinRoomRequest{RoomID: room, Name: "Alice"})
	require.NoError(t, err)
	return signal.Envelope{Type: signal.TypeJoinRoom, RID: rid, Payload: payload}
}

func readFrame(t *testing.T, c *wsConn) signal.Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env signal.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	default:
		t.Fatal("no frame on send buffer")
		return signal.Envelope{}
	}
}

func TestHandleJoinSecondRoomRejected(t *testing.T) {
	ctl := newTestController()
	st := &connState{pid: "peer", conn: &wsConn{send: make(chan core.Frame, sendBuffer)}}

	ctl.handleJoin(context.Background(), st, joinEnvelope(t, "ROOM1", 1))
	env := readFrame(t, st.conn)
	assert.Equal(t, signal.TypeResponse, env.Type)
	assert.Equal(t, domain.RoomID("ROOM1"), st.currentRoom())

	// A second join on the same connection must not displace the first room.
	ctl.handleJoin(context.Background(), st, joinEnvelope(t, "ROOM2", 2))
	env = readFrame(t, st.conn)
	require.Equal(t, signal.TypeError, env.Type)
	errReply, err := signal.DecodePayload[signal.ErrorPayload](env)
	require.NoError(t, err)
	assert.Equal(t, signal.CodePeerExists, errReply.Code)
	assert.Equal(t, domain.RoomID("ROOM1"), st.currentRoom())

	room, ok := ctl.Coord.Rooms.Get("ROOM1")
	require.True(t, ok)
	assert.Equal(t, 1, room.PeerCount())
	_, ok = ctl.Coord.Rooms.Get("ROOM2")
	assert.False(t, ok, "rejected join must not create the second room")
}

func TestHandleJoinAfterLeave(t *testing.T) {
	ctl := newTestController()
	st := &connState{pid: "peer", conn: &wsConn{send: make(chan core.Frame, sendBuffer)}}

	ctl.handleJoin(context.Background(), st, joinEnvelope(t, "ROOM1", 1))
	require.Equal(t, signal.TypeResponse, readFrame(t, st.conn).Type)

	ctl.handleLeave(st, signal.Envelope{Type: signal.TypeLeaveRoom, RID: 2})
	require.Equal(t, signal.TypeResponse, readFrame(t, st.conn).Type)
	assert.Equal(t, domain.RoomID(""), st.currentRoom())

	// Leaving frees the connection for a fresh join.
	ctl.handleJoin(context.Background(), st, joinEnvelope(t, "ROOM2", 3))
	assert.Equal(t, signal.TypeResponse, readFrame(t, st.conn).Type)
	assert.Equal(t, domain.RoomID("ROOM2"), st.currentRoom())
}
