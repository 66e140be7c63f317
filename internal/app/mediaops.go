package app

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/avolkov/huddle/internal/core"
	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
	"github.com/avolkov/huddle/internal/signal"
)

// CreateTransport asks the engine for a transport bound to the room's
// router and stores it in the peer's slot. A replaced stale handle is
// closed; on any failure nothing is stored.
func (c *Coordinator) CreateTransport(ctx context.Context, pid domain.PeerID, roomID domain.RoomID, dir core.Direction) (media.ConnectParams, error) {
	room, err := c.room(roomID)
	if err != nil {
		return media.ConnectParams{}, err
	}
	router := room.Router()
	if router == nil {
		return media.ConnectParams{}, fmt.Errorf("room %s has no router", roomID)
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	transport, err := router.CreateTransport(cctx, c.Transport)
	if err != nil {
		return media.ConnectParams{}, fmt.Errorf("create %s transport: %w", dir, err)
	}

	stale, err := room.SetTransport(pid, dir, transport)
	if err != nil {
		_ = transport.Close()
		return media.ConnectParams{}, err
	}
	if stale != nil {
		_ = stale.Close()
	}
	return transport.ConnectParams(), nil
}

// ConnectTransport finishes the two-phase handshake with the client's DTLS
// parameters. Connecting a slot that was never created is an error.
func (c *Coordinator) ConnectTransport(ctx context.Context, pid domain.PeerID, roomID domain.RoomID, dir core.Direction, dtls webrtc.DTLSParameters) error {
	room, err := c.room(roomID)
	if err != nil {
		return err
	}
	transport, err := room.TransportForConnect(pid, dir)
	if err != nil {
		return err
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := transport.Connect(cctx, dtls); err != nil {
		return fmt.Errorf("connect %s transport: %w", dir, err)
	}
	return room.MarkConnected(pid, dir)
}

// Produce publishes a track on the peer's connected send transport. The
// producer record append and the newProducer fanout to the peers present at
// that instant happen in one room critical section.
func (c *Coordinator) Produce(ctx context.Context, pid domain.PeerID, roomID domain.RoomID, kind domain.MediaKind, params media.RTPParameters) (string, error) {
	room, err := c.room(roomID)
	if err != nil {
		return "", err
	}
	transport, err := room.ConnectedTransport(pid, core.DirectionSend)
	if err != nil {
		return "", err
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	producer, err := transport.Produce(cctx, kind, params)
	if err != nil {
		return "", fmt.Errorf("produce %s: %w", kind, err)
	}

	frame, err := signal.Encode(signal.TypeNewProducer, 0, signal.NewProducer{
		ProducerID: producer.ID(),
		PeerID:     pid,
		Kind:       kind,
	})
	if err != nil {
		_ = producer.Close()
		return "", err
	}
	rec := core.ProducerRecord{ID: producer.ID(), Kind: kind, Handle: producer}
	if err := room.AddProducer(pid, rec, frame); err != nil {
		_ = producer.Close()
		return "", err
	}
	return producer.ID(), nil
}

// ConsumeResult mirrors the engine consumer for the wire reply.
type ConsumeResult struct {
	ID            string
	ProducerID    string
	Kind          domain.MediaKind
	RTPParameters media.RTPParameters
}

// Consume subscribes the peer to a producer. Capability compatibility is
// checked up front and the consumer is created paused so the subscriber
// never receives media before it is ready to render it.
func (c *Coordinator) Consume(ctx context.Context, pid domain.PeerID, roomID domain.RoomID, producerID string, caps media.RTPCapabilities) (*ConsumeResult, error) {
	room, err := c.room(roomID)
	if err != nil {
		return nil, err
	}
	transport, err := room.ConnectedTransport(pid, core.DirectionRecv)
	if err != nil {
		return nil, err
	}
	router := room.Router()
	if router == nil || !router.CanConsume(producerID, caps) {
		return nil, domain.ErrCannotConsume
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	consumer, err := transport.Consume(cctx, producerID, caps, true)
	if err != nil {
		return nil, fmt.Errorf("consume producer %s: %w", producerID, err)
	}
	if err := room.AddConsumer(pid, consumer); err != nil {
		_ = consumer.Close()
		return nil, err
	}
	return &ConsumeResult{
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		Kind:          consumer.Kind(),
		RTPParameters: consumer.RTPParameters(),
	}, nil
}

// ResumeConsumer resumes one of the peer's own consumers.
func (c *Coordinator) ResumeConsumer(ctx context.Context, pid domain.PeerID, roomID domain.RoomID, consumerID string) error {
	room, err := c.room(roomID)
	if err != nil {
		return err
	}
	consumer, err := room.ConsumerByID(pid, consumerID)
	if err != nil {
		return err
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := consumer.Resume(cctx); err != nil {
		return fmt.Errorf("resume consumer %s: %w", consumerID, err)
	}
	return nil
}
