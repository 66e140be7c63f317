package media

import (
	"strings"

	"github.com/avolkov/huddle/internal/domain"
)

// RTPCodecCapability describes one codec a router or participant can handle.
type RTPCodecCapability struct {
	Kind       domain.MediaKind `json:"kind"`
	MimeType   string           `json:"mimeType"`
	ClockRate  uint32           `json:"clockRate"`
	Channels   uint16           `json:"channels,omitempty"`
	Parameters map[string]any   `json:"parameters,omitempty"`
}

type RTPCapabilities struct {
	Codecs []RTPCodecCapability `json:"codecs"`
}

// RTPCodecParameters is the negotiated form of a codec on a concrete track.
type RTPCodecParameters struct {
	MimeType    string `json:"mimeType"`
	PayloadType uint8  `json:"payloadType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
}

type RTPParameters struct {
	MID    string               `json:"mid,omitempty"`
	Codecs []RTPCodecParameters `json:"codecs"`
}

// DefaultCodecs is the router codec set used for every room.
func DefaultCodecs() []RTPCodecCapability {
	return []RTPCodecCapability{
		{
			Kind:      domain.KindAudio,
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		},
		{
			Kind:      domain.KindVideo,
			MimeType:  "video/VP8",
			ClockRate: 90000,
			Parameters: map[string]any{
				"x-google-start-bitrate": 1500,
			},
		},
	}
}

// CodecMatches reports mimeType/clockRate compatibility between a codec and
// a capability set.
func CodecMatches(mimeType string, clockRate uint32, caps RTPCapabilities) bool {
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, mimeType) && c.ClockRate == clockRate {
			return true
		}
	}
	return false
}
