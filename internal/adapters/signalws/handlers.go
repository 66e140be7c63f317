package signalws

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/signal"
)

func (ctl *Controller) handleJoin(ctx context.Context, st *connState, env signal.Envelope) {
	p, err := signal.DecodePayload[signal.JoinRoomRequest](env)
	if err != nil {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, err.Error())
		return
	}
	// One room per connection. Without this, a second join would overwrite
	// the tracked room and disconnect teardown would never reach the first.
	if room := st.currentRoom(); room != "" {
		ctl.sendError(st.conn, env.RID, signal.CodePeerExists, "already in room "+string(room))
		return
	}
	if !ctl.Limiter.Allow(st.pid) {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, "too many join attempts")
		return
	}

	res, err := ctl.Coord.Join(ctx, st.pid, domain.RoomID(p.RoomID), p.Name, st.conn)
	if err != nil {
		ctl.replyErr(st.conn, env.RID, err)
		return
	}
	st.setRoom(domain.RoomID(p.RoomID))

	ctl.reply(st.conn, env.RID, signal.JoinRoomResponse{
		RTPCapabilities: res.RTPCapabilities,
		Peers:           res.Peers,
		IsHost:          res.IsHost,
	})
}

func (ctl *Controller) handleCreateTransport(ctx context.Context, st *connState, env signal.Envelope, dir core.Direction) {
	p, err := signal.DecodePayload[signal.TransportRequest](env)
	if err != nil {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, err.Error())
		return
	}
	params, err := ctl.Coord.CreateTransport(ctx, st.pid, domain.RoomID(p.RoomID), dir)
	if err != nil {
		ctl.replyErr(st.conn, env.RID, err)
		return
	}
	ctl.reply(st.conn, env.RID, params)
}

func (ctl *Controller) handleConnectTransport(ctx context.Context, st *connState, env signal.Envelope, dir core.Direction) {
	p, err := signal.DecodePayload[signal.ConnectTransportRequest](env)
	if err != nil {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, err.Error())
		return
	}
	if err := ctl.Coord.ConnectTransport(ctx, st.pid, domain.RoomID(p.RoomID), dir, p.DTLSParameters); err != nil {
		ctl.replyErr(st.conn, env.RID, err)
		return
	}
	ctl.reply(st.conn, env.RID, nil)
}

func (ctl *Controller) handleProduce(ctx context.Context, st *connState, env signal.Envelope) {
	p, err := signal.DecodePayload[signal.ProduceRequest](env)
	if err != nil {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, err.Error())
		return
	}
	producerID, err := ctl.Coord.Produce(ctx, st.pid, domain.RoomID(p.RoomID), p.Kind, p.RTPParameters)
	if err != nil {
		ctl.replyErr(st.conn, env.RID, err)
		return
	}
	ctl.reply(st.conn, env.RID, signal.ProduceResponse{ID: producerID})
}

func (ctl *Controller) handleConsume(ctx context.Context, st *connState, env signal.Envelope) {
	p, err := signal.DecodePayload[signal.ConsumeRequest](env)
	if err != nil {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, err.Error())
		return
	}
	res, err := ctl.Coord.Consume(ctx, st.pid, domain.RoomID(p.RoomID), p.ProducerID, p.RTPCapabilities)
	if err != nil {
		ctl.replyErr(st.conn, env.RID, err)
		return
	}
	ctl.reply(st.conn, env.RID, signal.ConsumeResponse{
		ID:            res.ID,
		ProducerID:    res.ProducerID,
		Kind:          res.Kind,
		RTPParameters: res.RTPParameters,
	})
}

func (ctl *Controller) handleResumeConsumer(ctx context.Context, st *connState, env signal.Envelope) {
	p, err := signal.DecodePayload[signal.ResumeConsumerRequest](env)
	if err != nil {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, err.Error())
		return
	}
	if err := ctl.Coord.ResumeConsumer(ctx, st.pid, domain.RoomID(p.RoomID), p.ConsumerID); err != nil {
		ctl.replyErr(st.conn, env.RID, err)
		return
	}
	ctl.reply(st.conn, env.RID, nil)
}

// handleLeave exits the room without tearing down the connection.
func (ctl *Controller) handleLeave(st *connState, env signal.Envelope) {
	room := st.currentRoom()
	if room == "" {
		ctl.sendError(st.conn, env.RID, signal.CodeRoomNotFound, "not in a room")
		return
	}
	if err := ctl.Coord.Leave(st.pid, room); err != nil {
		ctl.replyErr(st.conn, env.RID, err)
		return
	}
	st.setRoom("")
	log.Info().Str("module", "signal").Str("peer", string(st.pid)).Str("room", string(room)).Msg("left room")
	ctl.reply(st.conn, env.RID, nil)
}
