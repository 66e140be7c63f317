// Package memory is an in-process implementation of the media engine
// contract. It performs no packet forwarding: it allocates ids, hands out
// ICE/DTLS connection parameters and keeps the producer/consumer registry
// that CanConsume and Consume are answered from. The server uses it as its
// default engine and the tests use it as a fixture.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/media"
)

const iceRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Options struct {
	ListenIP    string
	AnnouncedIP string
	MinPort     uint16
	MaxPort     uint16
}

type Engine struct {
	opts    Options
	portSeq atomic.Uint32
}

func NewEngine(opts Options) *Engine {
	if opts.ListenIP == "" {
		opts.ListenIP = "0.0.0.0"
	}
	if opts.MinPort == 0 {
		opts.MinPort = 40000
	}
	if opts.MaxPort < opts.MinPort {
		opts.MaxPort = opts.MinPort + 9999
	}
	return &Engine{opts: opts}
}

func (e *Engine) CreateRouter(ctx context.Context, codecs []media.RTPCodecCapability) (media.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := newRouter(e, codecs)
	log.Debug().Str("module", "media.memory").Str("router", r.ID()).Msg("router created")
	return r, nil
}

// nextPort cycles through the configured RTC port range.
func (e *Engine) nextPort() uint16 {
	span := uint32(e.opts.MaxPort-e.opts.MinPort) + 1
	n := e.portSeq.Add(1) - 1
	return e.opts.MinPort + uint16(n%span)
}

func (e *Engine) candidateAddress() string {
	if e.opts.AnnouncedIP != "" {
		return e.opts.AnnouncedIP
	}
	return e.opts.ListenIP
}

func iceCredentials() (webrtc.ICEParameters, error) {
	ufrag, err := randutil.GenerateCryptoRandomString(16, iceRunes)
	if err != nil {
		return webrtc.ICEParameters{}, err
	}
	pwd, err := randutil.GenerateCryptoRandomString(32, iceRunes)
	if err != nil {
		return webrtc.ICEParameters{}, err
	}
	return webrtc.ICEParameters{UsernameFragment: ufrag, Password: pwd}, nil
}

func dtlsFingerprint() (webrtc.DTLSParameters, error) {
	raw, err := randutil.GenerateCryptoRandomString(64, "0123456789abcdef")
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
		Role: webrtc.DTLSRoleAuto,
		Fingerprints: []webrtc.DTLSFingerprint{
			{Algorithm: "sha-256", Value: fp},
		},
	}, nil
}

func hostCandidate(address string, port uint16, proto webrtc.ICEProtocol) webrtc.ICECandidate {
	foundation := fmt.Sprintf("%d", port)
	return webrtc.ICECandidate{
		Foundation: foundation,
		Priority:   1<<24 | uint32(port),
		Address:    address,
		Protocol:   proto,
		Port:       port,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	}
}
