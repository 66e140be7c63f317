package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/avolkov/huddle/internal/media"
)

var (
	errRouterClosed      = errors.New("router closed")
	errUnknownProducer   = errors.New("unknown producer")
	errNoCompatibleCodec = errors.New("no compatible codec")
)

type router struct {
	engine *Engine
	id     string
	caps   media.RTPCapabilities

	mu        sync.RWMutex
	producers map[string]*producer
	closed    bool
}

func newRouter(e *Engine, codecs []media.RTPCodecCapability) *router {
	return &router{
		engine:    e,
		id:        uuid.NewString(),
		caps:      media.RTPCapabilities{Codecs: codecs},
		producers: make(map[string]*producer),
	}
}

func (r *router) ID() string { return r.id }

func (r *router) RTPCapabilities() media.RTPCapabilities { return r.caps }

func (r *router) CanConsume(producerID string, caps media.RTPCapabilities) bool {
	r.mu.RLock()
	p, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	for _, c := range p.params.Codecs {
		if media.CodecMatches(c.MimeType, c.ClockRate, caps) {
			return true
		}
	}
	return false
}

func (r *router) CreateTransport(ctx context.Context, opts media.TransportOptions) (media.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, errRouterClosed
	}
	return newTransport(r, opts)
}

func (r *router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.producers = make(map[string]*producer)
	return nil
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *router) unregisterProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *router) producerByID(id string) (*producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}
