// Package domain contains identifiers and roster views shared by every layer.
// No transport or engine logic here.
package domain

import "errors"

const MaxPeerNameLen = 64

var (
	ErrNameEmpty   = errors.New("peer name empty")
	ErrNameTooLong = errors.New("peer name too long")
)

// PeerID equals the id of the signaling connection that created the peer.
type PeerID string

// MediaKind is the track kind a producer or consumer carries.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// ValidateName checks a display name supplied at join time.
// Uniqueness is deliberately not enforced.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxPeerNameLen {
		return ErrNameTooLong
	}
	return nil
}

// PeerInfo is the roster view briefed to a joining peer.
// Producer ids are split per kind so the subscriber can consume them directly.
type PeerInfo struct {
	ID             PeerID   `json:"id"`
	Name           string   `json:"name"`
	IsHost         bool     `json:"isHost"`
	VideoProducers []string `json:"videoProducers"`
	AudioProducers []string `json:"audioProducers"`
}
