// Package app hosts the signaling coordinator: the per-request orchestration
// layer between the room state machine in core and the media engine.
package app

import (
	"context"
	"time"

	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
)

const defaultCallTimeout = 10 * time.Second

// Coordinator executes signaling requests. Engine round trips run outside
// the room lock and are bounded by CallTimeout; a failed round trip leaves
// no partial state on the peer.
type Coordinator struct {
	Rooms       *core.Registry
	Engine      media.Engine
	Transport   media.TransportOptions
	CallTimeout time.Duration
}

func NewCoordinator(rooms *core.Registry, engine media.Engine, transport media.TransportOptions, callTimeout time.Duration) *Coordinator {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Coordinator{
		Rooms:       rooms,
		Engine:      engine,
		Transport:   transport,
		CallTimeout: callTimeout,
	}
}

func (c *Coordinator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.CallTimeout)
}

func (c *Coordinator) room(id domain.RoomID) (*core.Room, error) {
	room, ok := c.Rooms.Get(id)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}
