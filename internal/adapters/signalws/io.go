package signalws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/signal"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, st *connState) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(st.pid)).Msg("readPump closing")
		if room := st.currentRoom(); room != "" {
			if err := ctl.Coord.Leave(st.pid, room); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("peer", string(st.pid)).Msg("disconnect teardown")
			}
		}
		cancel()
		st.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := st.conn.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("peer", string(st.pid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(ctx, st, data)
		}
	}
}

// dispatch routes one request frame to its handler. Handler failures are
// reported on the requester's reply channel and never tear down the pump.
func (ctl *Controller) dispatch(ctx context.Context, st *connState, data []byte) {
	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(st.pid)).Msg("bad json")
		return
	}
	if !signal.IsRequest(env.Type) {
		ctl.sendError(st.conn, env.RID, signal.CodeBadRequest, "unknown request type "+string(env.Type))
		return
	}

	switch env.Type {
	case signal.TypeJoinRoom:
		ctl.handleJoin(ctx, st, env)
	case signal.TypeCreateSendTransport:
		ctl.handleCreateTransport(ctx, st, env, core.DirectionSend)
	case signal.TypeConnectSendTransport:
		ctl.handleConnectTransport(ctx, st, env, core.DirectionSend)
	case signal.TypeProduce:
		ctl.handleProduce(ctx, st, env)
	case signal.TypeCreateRecvTransport:
		ctl.handleCreateTransport(ctx, st, env, core.DirectionRecv)
	case signal.TypeConnectRecvTransport:
		ctl.handleConnectTransport(ctx, st, env, core.DirectionRecv)
	case signal.TypeConsume:
		ctl.handleConsume(ctx, st, env)
	case signal.TypeResumeConsumer:
		ctl.handleResumeConsumer(ctx, st, env)
	case signal.TypeLeaveRoom:
		ctl.handleLeave(st, env)
	}
}

func (ctl *Controller) reply(c *wsConn, rid uint64, payload any) {
	frame, err := signal.Encode(signal.TypeResponse, rid, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode response")
		return
	}
	if err := c.TrySend(core.Frame(frame)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("response dropped")
	}
}

func (ctl *Controller) sendError(c *wsConn, rid uint64, code, message string) {
	frame, err := signal.Encode(signal.TypeError, rid, signal.ErrorPayload{Code: code, Message: message})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode error reply")
		return
	}
	if err := c.TrySend(core.Frame(frame)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("error reply dropped")
	}
}

func (ctl *Controller) replyErr(c *wsConn, rid uint64, err error) {
	ctl.sendError(c, rid, signal.ErrorCode(err), err.Error())
}
