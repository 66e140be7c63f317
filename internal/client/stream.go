package client

import (
	"sync"

	"github.com/avolkov/huddle/internal/domain"
)

// Track is one consumed remote track. ID is the producer id, which is what
// keeps accumulation idempotent under re-delivery.
type Track struct {
	ID         string
	Kind       domain.MediaKind
	ConsumerID string
}

// RemoteStream accumulates the tracks of one remote peer. Audio and video
// arrive via separate consume round-trips, in either order, and converge
// here into a single playable stream.
type RemoteStream struct {
	PeerID domain.PeerID

	mu     sync.RWMutex
	tracks map[string]Track
}

func newRemoteStream(peerID domain.PeerID) *RemoteStream {
	return &RemoteStream{
		PeerID: peerID,
		tracks: make(map[string]Track),
	}
}

// AddTrack stores the track, reporting false on re-delivery of a producer
// id already present.
func (s *RemoteStream) AddTrack(t Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t.ID]; ok {
		return false
	}
	s.tracks[t.ID] = t
	return true
}

func (s *RemoteStream) RemoveTrack(producerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[producerID]; !ok {
		return false
	}
	delete(s.tracks, producerID)
	return true
}

func (s *RemoteStream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *RemoteStream) HasKind(kind domain.MediaKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// StreamSet keys remote streams by peer id.
type StreamSet struct {
	mu      sync.Mutex
	streams map[domain.PeerID]*RemoteStream
}

func NewStreamSet() *StreamSet {
	return &StreamSet{streams: make(map[domain.PeerID]*RemoteStream)}
}

func (set *StreamSet) GetOrCreate(peerID domain.PeerID) *RemoteStream {
	set.mu.Lock()
	defer set.mu.Unlock()
	if s, ok := set.streams[peerID]; ok {
		return s
	}
	s := newRemoteStream(peerID)
	set.streams[peerID] = s
	return s
}

func (set *StreamSet) Get(peerID domain.PeerID) (*RemoteStream, bool) {
	set.mu.Lock()
	defer set.mu.Unlock()
	s, ok := set.streams[peerID]
	return s, ok
}

func (set *StreamSet) Remove(peerID domain.PeerID) {
	set.mu.Lock()
	defer set.mu.Unlock()
	delete(set.streams, peerID)
}

func (set *StreamSet) Len() int {
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.streams)
}
