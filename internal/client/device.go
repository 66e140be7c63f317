package client

import (
	"errors"
	"strings"
	"sync"

	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
)

var (
	ErrDeviceNotLoaded    = errors.New("device not loaded")
	ErrNoCompatibleCodecs = errors.New("no codecs shared with router")
	errUnsupportedKind    = errors.New("device cannot produce this kind")
)

// Device is the local capability model. It is loaded exactly once, from the
// router capabilities in the join reply, and is required input for every
// consume request.
type Device struct {
	mu     sync.RWMutex
	loaded bool
	caps   media.RTPCapabilities
}

func NewDevice() *Device {
	return &Device{}
}

// supportedCodecs is what this endpoint can encode and decode.
func supportedCodecs() []media.RTPCodecCapability {
	return []media.RTPCodecCapability{
		{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
	}
}

// payloadTypeFor follows the conventional static assignments.
func payloadTypeFor(mimeType string) uint8 {
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/") {
		return 111
	}
	return 96
}

// Load intersects local support with the router's capabilities. Loading an
// already loaded device is a no-op.
func (d *Device) Load(routerCaps media.RTPCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}

	var codecs []media.RTPCodecCapability
	for _, c := range supportedCodecs() {
		if media.CodecMatches(c.MimeType, c.ClockRate, routerCaps) {
			codecs = append(codecs, c)
		}
	}
	if len(codecs) == 0 {
		return ErrNoCompatibleCodecs
	}
	d.caps = media.RTPCapabilities{Codecs: codecs}
	d.loaded = true
	return nil
}

func (d *Device) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

func (d *Device) RTPCapabilities() (media.RTPCapabilities, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return media.RTPCapabilities{}, ErrDeviceNotLoaded
	}
	return d.caps, nil
}

func (d *Device) CanProduce(kind domain.MediaKind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return false
	}
	for _, c := range d.caps.Codecs {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// ProduceParameters builds the RTP parameters for publishing one track of
// the given kind.
func (d *Device) ProduceParameters(kind domain.MediaKind) (media.RTPParameters, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return media.RTPParameters{}, ErrDeviceNotLoaded
	}
	for _, c := range d.caps.Codecs {
		if c.Kind != kind {
			continue
		}
		return media.RTPParameters{
			Codecs: []media.RTPCodecParameters{{
				MimeType:    c.MimeType,
				PayloadType: payloadTypeFor(c.MimeType),
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
			}},
		}, nil
	}
	return media.RTPParameters{}, errUnsupportedKind
}
