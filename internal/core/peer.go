package core

import (
	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
)

// Direction selects one of a peer's two transport slots.
type Direction int

const (
	DirectionSend Direction = iota
	DirectionRecv
)

func (d Direction) String() string {
	if d == DirectionSend {
		return "send"
	}
	return "recv"
}

// TransportState is the per-slot handshake state machine.
// Absent -> Created -> Connected, never backwards.
type TransportState int

const (
	TransportAbsent TransportState = iota
	TransportCreated
	TransportConnected
)

// ProducerRecord is the room-side bookkeeping for one published track.
// Handle is the engine producer, kept so teardown can close it.
type ProducerRecord struct {
	ID     string
	Kind   domain.MediaKind
	Handle media.Producer
}

type transportSlot struct {
	transport media.Transport
	state     TransportState
}

// Peer is the per-connection state of one participant. All fields below the
// identity block are guarded by the owning room's lock; a Peer never
// migrates between rooms.
type Peer struct {
	ID     domain.PeerID
	Name   string
	IsHost bool

	sink      Notifier
	send      transportSlot
	recv      transportSlot
	producers []ProducerRecord
	consumers []media.Consumer
}

func NewPeer(id domain.PeerID, name string, isHost bool, sink Notifier) *Peer {
	return &Peer{ID: id, Name: name, IsHost: isHost, sink: sink}
}

func (p *Peer) slot(d Direction) *transportSlot {
	if d == DirectionSend {
		return &p.send
	}
	return &p.recv
}

// Producers returns a copy of the peer's producer records.
func (p *Peer) Producers() []ProducerRecord {
	out := make([]ProducerRecord, len(p.producers))
	copy(out, p.producers)
	return out
}

// Transports returns whatever transport handles the peer holds, for teardown.
func (p *Peer) Transports() []media.Transport {
	var out []media.Transport
	if p.send.transport != nil {
		out = append(out, p.send.transport)
	}
	if p.recv.transport != nil {
		out = append(out, p.recv.transport)
	}
	return out
}

func (p *Peer) info() domain.PeerInfo {
	info := domain.PeerInfo{
		ID:             p.ID,
		Name:           p.Name,
		IsHost:         p.IsHost,
		VideoProducers: []string{},
		AudioProducers: []string{},
	}
	for _, prod := range p.producers {
		switch prod.Kind {
		case domain.KindVideo:
			info.VideoProducers = append(info.VideoProducers, prod.ID)
		case domain.KindAudio:
			info.AudioProducers = append(info.AudioProducers, prod.ID)
		}
	}
	return info
}
