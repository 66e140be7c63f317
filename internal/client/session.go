package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/signal"
)

// requester is the slice of Conn the session needs; tests substitute it.
type requester interface {
	Request(ctx context.Context, t signal.MessageType, payload any) (json.RawMessage, error)
}

var ErrNotJoined = errors.New("session has not joined a room")

// Session drives the client half of the negotiation protocol: load the
// device once, bring up the recv transport, consume the roster's existing
// producers, then react to newProducer broadcasts for everything published
// after the join.
type Session struct {
	rq      requester
	device  *Device
	streams *StreamSet

	callTimeout time.Duration

	mu        sync.Mutex
	roomID    domain.RoomID
	name      string
	sendReady bool
	recvReady bool
	peers     map[domain.PeerID]domain.PeerInfo
	// Producers announced while the recv transport was still coming up;
	// drained by Join right after the transport is ready.
	pending []pendingProducer

	onStream func(*RemoteStream)
}

type pendingProducer struct {
	producerID string
	peerID     domain.PeerID
}

func NewSession(rq requester) *Session {
	return &Session{
		rq:          rq,
		device:      NewDevice(),
		streams:     NewStreamSet(),
		callTimeout: 10 * time.Second,
		peers:       make(map[domain.PeerID]domain.PeerInfo),
	}
}

// OnStream registers a callback fired whenever a remote stream gains or
// loses a track. Must be set before Join.
func (s *Session) OnStream(fn func(*RemoteStream)) {
	s.onStream = fn
}

func (s *Session) Device() *Device     { return s.device }
func (s *Session) Streams() *StreamSet { return s.streams }

type JoinInfo struct {
	IsHost bool
	Peers  []domain.PeerInfo
}

// Join enters the room and runs the catch-up cycle: device load, recv
// transport setup, then a consume+resume pass over every producer the
// roster already carries.
func (s *Session) Join(ctx context.Context, roomID domain.RoomID, name string) (*JoinInfo, error) {
	raw, err := s.rq.Request(ctx, signal.TypeJoinRoom, signal.JoinRoomRequest{
		RoomID: string(roomID),
		Name:   name,
	})
	if err != nil {
		return nil, err
	}
	var resp signal.JoinRoomResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode join reply: %w", err)
	}

	if err := s.device.Load(resp.RTPCapabilities); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.roomID = roomID
	s.name = name
	for _, p := range resp.Peers {
		s.peers[p.ID] = p
	}
	s.mu.Unlock()

	// The recv transport must exist before any consume round trip.
	if err := s.setupTransport(ctx, signal.TypeCreateRecvTransport, signal.TypeConnectRecvTransport); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.recvReady = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, p := range resp.Peers {
		s.streams.GetOrCreate(p.ID)
		for _, producerID := range append(p.VideoProducers, p.AudioProducers...) {
			if err := s.consume(ctx, producerID, p.ID); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("producer", producerID).Msg("catch-up consume failed")
			}
		}
	}
	// Broadcasts that raced the transport setup; consume is idempotent per
	// producer id, so overlap with the roster is harmless.
	for _, q := range queued {
		if err := s.consume(ctx, q.producerID, q.peerID); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("producer", q.producerID).Msg("queued consume failed")
		}
	}

	log.Info().Str("module", "client").Str("room", string(roomID)).Bool("host", resp.IsHost).Int("peers", len(resp.Peers)).Msg("joined room")
	return &JoinInfo{IsHost: resp.IsHost, Peers: resp.Peers}, nil
}

// Publish brings up the send transport on first use and produces one track
// per requested kind. Returns the producer ids.
func (s *Session) Publish(ctx context.Context, kinds ...domain.MediaKind) ([]string, error) {
	s.mu.Lock()
	roomID := s.roomID
	sendReady := s.sendReady
	s.mu.Unlock()
	if roomID == "" {
		return nil, ErrNotJoined
	}

	if !sendReady {
		if err := s.setupTransport(ctx, signal.TypeCreateSendTransport, signal.TypeConnectSendTransport); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.sendReady = true
		s.mu.Unlock()
	}

	var producerIDs []string
	for _, kind := range kinds {
		params, err := s.device.ProduceParameters(kind)
		if err != nil {
			return producerIDs, err
		}
		raw, err := s.rq.Request(ctx, signal.TypeProduce, signal.ProduceRequest{
			RoomID:        string(roomID),
			Kind:          kind,
			RTPParameters: params,
		})
		if err != nil {
			return producerIDs, err
		}
		var resp signal.ProduceResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return producerIDs, fmt.Errorf("decode produce reply: %w", err)
		}
		producerIDs = append(producerIDs, resp.ID)
		log.Info().Str("module", "client").Str("kind", string(kind)).Str("producer", resp.ID).Msg("producing")
	}
	return producerIDs, nil
}

// Leave exits the room; the connection stays usable.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()
	if roomID == "" {
		return ErrNotJoined
	}
	if _, err := s.rq.Request(ctx, signal.TypeLeaveRoom, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.roomID = ""
	s.sendReady = false
	s.recvReady = false
	s.pending = nil
	s.peers = make(map[domain.PeerID]domain.PeerInfo)
	s.mu.Unlock()
	return nil
}

func (s *Session) setupTransport(ctx context.Context, createType, connectType signal.MessageType) error {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()

	raw, err := s.rq.Request(ctx, createType, signal.TransportRequest{RoomID: string(roomID)})
	if err != nil {
		return err
	}
	// The connection params round-trip is what the two-phase handshake
	// exists for; the reply is not needed beyond acknowledging it.
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("decode transport params: %w", err)
	}

	dtls, err := localDTLSParameters()
	if err != nil {
		return err
	}
	if _, err := s.rq.Request(ctx, connectType, signal.ConnectTransportRequest{
		RoomID:         string(roomID),
		DTLSParameters: dtls,
	}); err != nil {
		return err
	}
	log.Debug().Str("module", "client").Str("transport", params.ID).Str("type", string(createType)).Msg("transport connected")
	return nil
}

func (s *Session) consume(ctx context.Context, producerID string, peerID domain.PeerID) error {
	s.mu.Lock()
	roomID := s.roomID
	recvReady := s.recvReady
	s.mu.Unlock()
	if !recvReady {
		return ErrNotJoined
	}

	caps, err := s.device.RTPCapabilities()
	if err != nil {
		return err
	}
	raw, err := s.rq.Request(ctx, signal.TypeConsume, signal.ConsumeRequest{
		RoomID:          string(roomID),
		ProducerID:      producerID,
		RTPCapabilities: caps,
	})
	if err != nil {
		return err
	}
	var resp signal.ConsumeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode consume reply: %w", err)
	}

	stream := s.streams.GetOrCreate(peerID)
	added := stream.AddTrack(Track{ID: resp.ProducerID, Kind: resp.Kind, ConsumerID: resp.ID})
	if !added {
		// Re-delivery of a producer we already consume; nothing to resume.
		return nil
	}
	if s.onStream != nil {
		s.onStream(stream)
	}

	if _, err := s.rq.Request(ctx, signal.TypeResumeConsumer, signal.ResumeConsumerRequest{
		RoomID:     string(roomID),
		ConsumerID: resp.ID,
	}); err != nil {
		return err
	}
	log.Debug().Str("module", "client").Str("peer", string(peerID)).Str("producer", producerID).Str("kind", string(resp.Kind)).Msg("consuming")
	return nil
}

// HandleNotification is the Conn notification callback. Consume cycles run
// on their own goroutine because they issue requests of their own.
func (s *Session) HandleNotification(env signal.Envelope) {
	switch env.Type {
	case signal.TypeNewPeer:
		var p signal.NewPeer
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		s.peers[p.ID] = domain.PeerInfo{ID: p.ID, Name: p.Name, IsHost: p.IsHost}
		s.mu.Unlock()
		s.streams.GetOrCreate(p.ID)

	case signal.TypeNewProducer:
		var p signal.NewProducer
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		// A producer can arrive from a peer we have not seen yet when its
		// newPeer broadcast predates our join; create the bookkeeping first.
		s.streams.GetOrCreate(p.PeerID)
		s.mu.Lock()
		if !s.recvReady {
			// Mid-join: the recv transport is not up yet. Park it; Join
			// drains the queue once the transport is connected.
			s.pending = append(s.pending, pendingProducer{producerID: p.ProducerID, peerID: p.PeerID})
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
			defer cancel()
			if err := s.consume(ctx, p.ProducerID, p.PeerID); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("producer", p.ProducerID).Msg("consume of broadcast producer failed")
			}
		}()

	case signal.TypePeerLeft:
		var p signal.PeerLeft
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		delete(s.peers, p.PeerID)
		s.mu.Unlock()
		s.streams.Remove(p.PeerID)

	case signal.TypeProducerClosed:
		var p signal.ProducerClosed
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		if stream, ok := s.streams.Get(p.PeerID); ok {
			if stream.RemoveTrack(p.ProducerID) && s.onStream != nil {
				s.onStream(stream)
			}
		}
	}
}

// PeerName resolves a display name from roster bookkeeping.
func (s *Session) PeerName(id domain.PeerID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	return p.Name, ok
}

const dtlsRunes = "0123456789abcdef"

// localDTLSParameters generates this endpoint's DTLS fingerprint for the
// connect phase of the transport handshake.
func localDTLSParameters() (webrtc.DTLSParameters, error) {
	raw, err := randutil.GenerateCryptoRandomString(64, dtlsRunes)
	if err != nil {
		return webrtc.DTLSParameters{}, err
	}
	fp := ""
	for i := 0; i < len(raw); i += 2 {
		if fp != "" {
			fp += ":"
		}
		fp += raw[i : i+2]
	}
	return webrtc.DTLSParameters{
		Role: webrtc.DTLSRoleClient,
		Fingerprints: []webrtc.DTLSFingerprint{
			{Algorithm: "sha-256", Value: fp},
		},
	}, nil
}
