// Package media defines the contract the coordinator holds against the
// media-routing engine. Routers, transports, producers and consumers are
// opaque handles; every call that crosses into the engine is a round trip
// and takes a context.
package media

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/avolkov/huddle/internal/domain"
)

type Engine interface {
	// CreateRouter allocates a routing context scoped to one room.
	CreateRouter(ctx context.Context, codecs []RTPCodecCapability) (Router, error)
}

type Router interface {
	ID() string
	// RTPCapabilities is safe for concurrent use once the router exists.
	RTPCapabilities() RTPCapabilities
	// CanConsume reports whether a subscriber with the given capabilities
	// can consume the producer. Callers must check this before Consume.
	CanConsume(producerID string, caps RTPCapabilities) bool
	CreateTransport(ctx context.Context, opts TransportOptions) (Transport, error)
	Close() error
}

// Transport is a directional network path between one client and the engine.
// Connect completes the DTLS handshake started by ConnectParams.
type Transport interface {
	ID() string
	ConnectParams() ConnectParams
	Connect(ctx context.Context, dtls webrtc.DTLSParameters) error
	Produce(ctx context.Context, kind domain.MediaKind, params RTPParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RTPCapabilities, paused bool) (Consumer, error)
	Close() error
}

type Producer interface {
	ID() string
	Kind() domain.MediaKind
	Close() error
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	RTPParameters() RTPParameters
	Resume(ctx context.Context) error
	Close() error
}

// TransportOptions mirrors the engine's WebRTC transport listen config.
// The announced address is what remote clients are told to dial.
type TransportOptions struct {
	ListenIP    string
	AnnouncedIP string
	EnableUDP   bool
	EnableTCP   bool
	PreferUDP   bool
}

// ConnectParams round-trips to the client so it can finish ICE/DTLS setup.
type ConnectParams struct {
	ID             string                `json:"id"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}
