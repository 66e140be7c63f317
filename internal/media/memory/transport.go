package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
)

var (
	errTransportClosed       = errors.New("transport closed")
	errTransportNotConnected = errors.New("transport not connected")
	errMissingFingerprints   = errors.New("dtls parameters carry no fingerprints")
)

type transport struct {
	router *router
	id     string
	params media.ConnectParams

	mu        sync.Mutex
	connected bool
	closed    bool
}

func newTransport(r *router, opts media.TransportOptions) (*transport, error) {
	ice, err := iceCredentials()
	if err != nil {
		return nil, err
	}
	dtls, err := dtlsFingerprint()
	if err != nil {
		return nil, err
	}

	address := r.engine.candidateAddress()
	if opts.AnnouncedIP != "" {
		address = opts.AnnouncedIP
	}
	var candidates []webrtc.ICECandidate
	if opts.EnableUDP {
		candidates = append(candidates, hostCandidate(address, r.engine.nextPort(), webrtc.ICEProtocolUDP))
	}
	if opts.EnableTCP {
		candidates = append(candidates, hostCandidate(address, r.engine.nextPort(), webrtc.ICEProtocolTCP))
	}

	t := &transport{
		router: r,
		id:     uuid.NewString(),
	}
	t.params = media.ConnectParams{
		ID:             t.id,
		ICEParameters:  ice,
		ICECandidates:  candidates,
		DTLSParameters: dtls,
	}
	return t, nil
}

func (t *transport) ID() string { return t.id }

func (t *transport) ConnectParams() media.ConnectParams { return t.params }

func (t *transport) Connect(ctx context.Context, dtls webrtc.DTLSParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(dtls.Fingerprints) == 0 {
		return errMissingFingerprints
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	t.connected = true
	return nil
}

func (t *transport) Produce(ctx context.Context, kind domain.MediaKind, params media.RTPParameters) (media.Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid media kind %q", kind)
	}
	if err := t.requireConnected(); err != nil {
		return nil, err
	}
	if len(params.Codecs) == 0 {
		return nil, errNoCompatibleCodec
	}
	p := &producer{
		id:     uuid.NewString(),
		kind:   kind,
		params: params,
		router: t.router,
	}
	t.router.registerProducer(p)
	return p, nil
}

func (t *transport) Consume(ctx context.Context, producerID string, caps media.RTPCapabilities, paused bool) (media.Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.requireConnected(); err != nil {
		return nil, err
	}
	p, ok := t.router.producerByID(producerID)
	if !ok {
		return nil, errUnknownProducer
	}

	// Negotiated parameters carry only the codecs both sides can handle.
	var codecs []media.RTPCodecParameters
	for _, c := range p.params.Codecs {
		if media.CodecMatches(c.MimeType, c.ClockRate, caps) {
			codecs = append(codecs, c)
		}
	}
	if len(codecs) == 0 {
		return nil, errNoCompatibleCodec
	}

	c := &consumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       p.kind,
		params:     media.RTPParameters{MID: p.params.MID, Codecs: codecs},
		paused:     paused,
	}
	return c, nil
}

func (t *transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
	return nil
}

func (t *transport) requireConnected() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	if !t.connected {
		return errTransportNotConnected
	}
	return nil
}

type producer struct {
	id     string
	kind   domain.MediaKind
	params media.RTPParameters
	router *router
}

func (p *producer) ID() string             { return p.id }
func (p *producer) Kind() domain.MediaKind { return p.kind }

func (p *producer) Close() error {
	p.router.unregisterProducer(p.id)
	return nil
}

type consumer struct {
	id         string
	producerID string
	kind       domain.MediaKind
	params     media.RTPParameters

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *consumer) ID() string                          { return c.id }
func (c *consumer) ProducerID() string                  { return c.producerID }
func (c *consumer) Kind() domain.MediaKind              { return c.kind }
func (c *consumer) RTPParameters() media.RTPParameters { return c.params }

func (c *consumer) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("consumer closed")
	}
	c.paused = false
	return nil
}

func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Paused is used by tests to observe the pause state.
func (c *consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}
