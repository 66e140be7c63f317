package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
	"github.com/avolkov/huddle/internal/signal"
)

// JoinResult briefs the joining peer. Peers never contains the joiner.
type JoinResult struct {
	RTPCapabilities media.RTPCapabilities
	Peers           []domain.PeerInfo
	IsHost          bool
}

// Join admits the peer into the room, creating room and router when the id
// is unseen. The creating join is the host; that flag comes straight out of
// the registry's atomic get-or-create, never from a separate lookup.
func (c *Coordinator) Join(ctx context.Context, pid domain.PeerID, roomID domain.RoomID, name string, sink core.Notifier) (*JoinResult, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	for {
		room, created := c.Rooms.GetOrCreate(roomID)

		router, err := room.EnsureRouter(ctx, func(ctx context.Context) (media.Router, error) {
			cctx, cancel := c.callCtx(ctx)
			defer cancel()
			return c.Engine.CreateRouter(cctx, media.DefaultCodecs())
		})
		if err != nil {
			if created {
				c.Rooms.RemoveIfEmpty(roomID)
			}
			return nil, fmt.Errorf("create router: %w", err)
		}

		frame, err := signal.Encode(signal.TypeNewPeer, 0, signal.NewPeer{
			ID:     pid,
			Name:   name,
			IsHost: created,
		})
		if err != nil {
			return nil, err
		}

		peer := core.NewPeer(pid, name, created, sink)
		roster, err := room.AddPeer(peer, frame)
		if errors.Is(err, domain.ErrRoomNotFound) {
			// Lost a race against empty-room removal; take a fresh room.
			continue
		}
		if err != nil {
			return nil, err
		}

		log.Info().Str("module", "app").Str("room", string(roomID)).Str("peer", string(pid)).Str("name", name).Bool("host", created).Msg("peer joined")
		return &JoinResult{
			RTPCapabilities: router.RTPCapabilities(),
			Peers:           roster,
			IsHost:          created,
		}, nil
	}
}

// Leave removes the peer, notifies the rest of the room, releases the
// peer's engine resources and drops the room once it is empty.
func (c *Coordinator) Leave(pid domain.PeerID, roomID domain.RoomID) error {
	room, err := c.room(roomID)
	if err != nil {
		return err
	}
	peer, sinks, err := room.RemovePeer(pid)
	if err != nil {
		return err
	}

	frames := make([]core.Frame, 0, 1+len(peer.Producers()))
	if frame, err := signal.Encode(signal.TypePeerLeft, 0, signal.PeerLeft{PeerID: pid}); err == nil {
		frames = append(frames, frame)
	}
	for _, rec := range peer.Producers() {
		if frame, err := signal.Encode(signal.TypeProducerClosed, 0, signal.ProducerClosed{
			PeerID:     pid,
			ProducerID: rec.ID,
		}); err == nil {
			frames = append(frames, frame)
		}
	}
	for _, sink := range sinks {
		for _, frame := range frames {
			if err := sink.TrySend(frame); err != nil {
				log.Warn().Str("module", "app").Str("room", string(roomID)).Err(err).Msg("departure notification dropped")
			}
		}
	}

	for _, rec := range peer.Producers() {
		if rec.Handle != nil {
			_ = rec.Handle.Close()
		}
	}
	for _, t := range peer.Transports() {
		_ = t.Close()
	}

	if removed, ok := c.Rooms.RemoveIfEmpty(roomID); ok {
		if router := removed.Router(); router != nil {
			_ = router.Close()
		}
	}

	log.Info().Str("module", "app").Str("room", string(roomID)).Str("peer", string(pid)).Msg("peer left")
	return nil
}
