package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
)

// Room owns one router handle and the peers attached to it. Every mutation
// of the peer set or of a peer's transport/producer/consumer state runs
// under a single room lock; that lock is also what makes the
// roster-snapshot-or-broadcast guarantee hold: membership insertion, roster
// snapshots and broadcast recipient selection all happen in the same
// critical section. Engine round trips stay outside the lock.
type Room struct {
	ID domain.RoomID

	initMu sync.Mutex
	router media.Router

	mu     sync.RWMutex
	peers  map[domain.PeerID]*Peer
	closed bool
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{
		ID:    id,
		peers: make(map[domain.PeerID]*Peer),
	}
}

// EnsureRouter creates the room's router on first use. Concurrent joiners
// block until the first creation finishes; a failed creation leaves the
// room router-less so the next joiner retries.
func (r *Room) EnsureRouter(ctx context.Context, create func(context.Context) (media.Router, error)) (media.Router, error) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.router != nil {
		return r.router, nil
	}
	router, err := create(ctx)
	if err != nil {
		return nil, err
	}
	r.router = router
	return router, nil
}

func (r *Room) Router() media.Router {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	return r.router
}

// AddPeer inserts the peer, briefs it with a snapshot of the other members
// and delivers the notify frame to them, all in one critical section. The
// returned roster never contains the joining peer.
func (r *Room) AddPeer(peer *Peer, notify Frame) ([]domain.PeerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrRoomNotFound
	}
	if _, ok := r.peers[peer.ID]; ok {
		return nil, domain.ErrPeerExists
	}

	roster := make([]domain.PeerInfo, 0, len(r.peers))
	for _, other := range r.peers {
		roster = append(roster, other.info())
	}
	r.peers[peer.ID] = peer
	r.fanoutLocked(peer.ID, notify)

	log.Info().Str("module", "core.room").Str("room", string(r.ID)).Str("peer", string(peer.ID)).Bool("host", peer.IsHost).Msg("peer added")
	return roster, nil
}

// RemovePeer detaches the peer and returns it together with the remaining
// members' sinks so the caller can fan out departure notifications.
func (r *Room) RemovePeer(id domain.PeerID) (*Peer, []Notifier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[id]
	if !ok {
		return nil, nil, domain.ErrPeerNotFound
	}
	delete(r.peers, id)

	sinks := make([]Notifier, 0, len(r.peers))
	for _, other := range r.peers {
		sinks = append(sinks, other.sink)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.ID)).Str("peer", string(id)).Msg("peer removed")
	return peer, sinks, nil
}

// Peers is a snapshot of the full roster, producers as of the call.
func (r *Room) Peers() []domain.PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.info())
	}
	return out
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// SetTransport stores a freshly created transport in the peer's slot and
// returns any stale handle it replaced so the caller can close it.
func (r *Room) SetTransport(id domain.PeerID, dir Direction, t media.Transport) (media.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[id]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	slot := peer.slot(dir)
	stale := slot.transport
	slot.transport = t
	slot.state = TransportCreated
	return stale, nil
}

// TransportForConnect hands out the slot's transport for the DTLS round
// trip. Connect from Absent is a protocol violation, not a silent no-op.
func (r *Room) TransportForConnect(id domain.PeerID, dir Direction) (media.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.peers[id]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	slot := peer.slot(dir)
	if slot.state == TransportAbsent || slot.transport == nil {
		return nil, domain.ErrTransportNotReady
	}
	return slot.transport, nil
}

// MarkConnected completes the slot's state machine after a successful
// engine connect.
func (r *Room) MarkConnected(id domain.PeerID, dir Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[id]
	if !ok {
		return domain.ErrPeerNotFound
	}
	slot := peer.slot(dir)
	if slot.state == TransportAbsent {
		return domain.ErrTransportNotReady
	}
	slot.state = TransportConnected
	return nil
}

// ConnectedTransport returns the slot's transport only once the two-phase
// handshake finished.
func (r *Room) ConnectedTransport(id domain.PeerID, dir Direction) (media.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.peers[id]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	slot := peer.slot(dir)
	if slot.state != TransportConnected {
		return nil, domain.ErrTransportNotReady
	}
	return slot.transport, nil
}

// AddProducer appends the record and delivers the notify frame to every
// other current member in the same critical section, so a peer either saw
// the producer in its join roster or receives this broadcast, never neither.
func (r *Room) AddProducer(id domain.PeerID, rec ProducerRecord, notify Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[id]
	if !ok {
		return domain.ErrPeerNotFound
	}
	peer.producers = append(peer.producers, rec)
	r.fanoutLocked(id, notify)
	log.Info().Str("module", "core.room").Str("room", string(r.ID)).Str("peer", string(id)).Str("producer", rec.ID).Str("kind", string(rec.Kind)).Msg("producer added")
	return nil
}

func (r *Room) AddConsumer(id domain.PeerID, c media.Consumer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[id]
	if !ok {
		return domain.ErrPeerNotFound
	}
	peer.consumers = append(peer.consumers, c)
	return nil
}

// ConsumerByID searches the peer's own consumer list only; a peer may not
// touch another peer's consumers.
func (r *Room) ConsumerByID(id domain.PeerID, consumerID string) (media.Consumer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.peers[id]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	for _, c := range peer.consumers {
		if c.ID() == consumerID {
			return c, nil
		}
	}
	return nil, domain.ErrConsumerNotFound
}

// closeIfEmpty marks the room closed when no peers remain, in the same
// critical section as the emptiness check. Called by the registry while
// removing the room; a join racing the removal either lands before the
// close and keeps the room alive, or observes the closed flag and retries
// against a fresh room.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.peers) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *Room) fanoutLocked(from domain.PeerID, frame Frame) {
	if frame == nil {
		return
	}
	for pid, p := range r.peers {
		if pid == from {
			continue
		}
		if err := p.sink.TrySend(frame); err != nil {
			log.Warn().Str("module", "core.room").Str("room", string(r.ID)).Str("peer", string(pid)).Err(err).Msg("notification dropped")
		}
	}
}
