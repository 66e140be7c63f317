package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
	"github.com/avolkov/huddle/internal/signal"
)

// fakeSignaling answers session requests with canned replies and records
// every call, so tests can assert on the protocol sequence without a server.
type fakeSignaling struct {
	mu       sync.Mutex
	calls    []signal.MessageType
	resumed  []string
	produced int
	roster   []domain.PeerInfo
	// kind reported for a consumed producer id; defaults to audio.
	kinds map[string]domain.MediaKind
	// invoked outside the lock before each request is answered, so tests
	// can interleave notifications with specific round trips.
	beforeReply func(signal.MessageType)
}

func newFakeSignaling() *fakeSignaling {
	return &fakeSignaling{kinds: make(map[string]domain.MediaKind)}
}

func (f *fakeSignaling) Request(_ context.Context, t signal.MessageType, payload any) (json.RawMessage, error) {
	if f.beforeReply != nil {
		f.beforeReply(t)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)

	switch t {
	case signal.TypeJoinRoom:
		return json.Marshal(signal.JoinRoomResponse{
			RTPCapabilities: media.RTPCapabilities{Codecs: media.DefaultCodecs()},
			Peers:           f.roster,
			IsHost:          len(f.roster) == 0,
		})
	case signal.TypeCreateSendTransport, signal.TypeCreateRecvTransport:
		return json.Marshal(media.ConnectParams{ID: fmt.Sprintf("transport-%d", len(f.calls))})
	case signal.TypeProduce:
		f.produced++
		return json.Marshal(signal.ProduceResponse{ID: fmt.Sprintf("prod-%d", f.produced)})
	case signal.TypeConsume:
		req := payload.(signal.ConsumeRequest)
		kind, ok := f.kinds[req.ProducerID]
		if !ok {
			kind = domain.KindAudio
		}
		return json.Marshal(signal.ConsumeResponse{
			ID:         "cons-" + req.ProducerID,
			ProducerID: req.ProducerID,
			Kind:       kind,
		})
	case signal.TypeResumeConsumer:
		req := payload.(signal.ResumeConsumerRequest)
		f.resumed = append(f.resumed, req.ConsumerID)
		return json.RawMessage(`{}`), nil
	default:
		return json.RawMessage(`{}`), nil
	}
}

func (f *fakeSignaling) callCount(t signal.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == t {
			n++
		}
	}
	return n
}

func (f *fakeSignaling) resumedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resumed...)
}

func TestSessionJoinCatchesUpOnRoster(t *testing.T) {
	fake := newFakeSignaling()
	fake.roster = []domain.PeerInfo{{
		ID:             "host",
		Name:           "Alice",
		IsHost:         true,
		AudioProducers: []string{"prod-a"},
		VideoProducers: []string{"prod-v"},
	}}
	fake.kinds["prod-a"] = domain.KindAudio
	fake.kinds["prod-v"] = domain.KindVideo

	s := NewSession(fake)
	info, err := s.Join(context.Background(), "ROOM", "Bob")
	require.NoError(t, err)
	assert.False(t, info.IsHost)

	// Both roster producers were consumed and resumed.
	assert.Equal(t, 2, fake.callCount(signal.TypeConsume))
	assert.ElementsMatch(t, []string{"cons-prod-a", "cons-prod-v"}, fake.resumedIDs())

	stream, ok := s.Streams().Get("host")
	require.True(t, ok)
	assert.True(t, stream.HasKind(domain.KindAudio))
	assert.True(t, stream.HasKind(domain.KindVideo))

	name, ok := s.PeerName("host")
	require.True(t, ok)
	assert.Equal(t, "Alice", name)

	// The recv transport came up before the first consume.
	assert.Equal(t, 1, fake.callCount(signal.TypeCreateRecvTransport))
	assert.Equal(t, 1, fake.callCount(signal.TypeConnectRecvTransport))
}

func TestSessionPublish(t *testing.T) {
	fake := newFakeSignaling()
	s := NewSession(fake)
	_, err := s.Join(context.Background(), "ROOM", "Alice")
	require.NoError(t, err)

	ids, err := s.Publish(context.Background(), domain.KindAudio, domain.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1", "prod-2"}, ids)
	assert.Equal(t, 1, fake.callCount(signal.TypeCreateSendTransport))

	// The send transport is reused on later publishes.
	_, err = s.Publish(context.Background(), domain.KindAudio)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.callCount(signal.TypeCreateSendTransport))
}

func TestSessionPublishBeforeJoin(t *testing.T) {
	s := NewSession(newFakeSignaling())
	_, err := s.Publish(context.Background(), domain.KindAudio)
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestSessionNewProducerBroadcast(t *testing.T) {
	fake := newFakeSignaling()
	fake.kinds["prod-late"] = domain.KindVideo
	s := NewSession(fake)

	var streamEvents int
	var eventsMu sync.Mutex
	s.OnStream(func(*RemoteStream) {
		eventsMu.Lock()
		streamEvents++
		eventsMu.Unlock()
	})

	_, err := s.Join(context.Background(), "ROOM", "Bob")
	require.NoError(t, err)

	newPeer, err := signal.Encode(signal.TypeNewPeer, 0, signal.NewPeer{ID: "late", Name: "Carol"})
	require.NoError(t, err)
	var env signal.Envelope
	require.NoError(t, json.Unmarshal(newPeer, &env))
	s.HandleNotification(env)

	frame, err := signal.Encode(signal.TypeNewProducer, 0, signal.NewProducer{
		ProducerID: "prod-late",
		PeerID:     "late",
		Kind:       domain.KindVideo,
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(frame, &env))
	s.HandleNotification(env)

	// The consume cycle runs on its own goroutine.
	assert.Eventually(t, func() bool {
		stream, ok := s.Streams().Get("late")
		return ok && stream.HasKind(domain.KindVideo)
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		for _, id := range fake.resumedIDs() {
			if id == "cons-prod-late" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	eventsMu.Lock()
	defer eventsMu.Unlock()
	assert.Equal(t, 1, streamEvents)
}

// A newProducer broadcast can land while Join is still connecting the recv
// transport. It must be parked and consumed once the transport is up, never
// dropped.
func TestSessionNewProducerDuringJoin(t *testing.T) {
	fake := newFakeSignaling()
	fake.kinds["prod-early"] = domain.KindVideo
	s := NewSession(fake)

	frame, err := signal.Encode(signal.TypeNewProducer, 0, signal.NewProducer{
		ProducerID: "prod-early",
		PeerID:     "late",
		Kind:       domain.KindVideo,
	})
	require.NoError(t, err)
	var env signal.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))

	fired := false
	fake.beforeReply = func(mt signal.MessageType) {
		if mt == signal.TypeConnectRecvTransport && !fired {
			fired = true
			s.HandleNotification(env)
		}
	}

	_, err = s.Join(context.Background(), "ROOM", "Bob")
	require.NoError(t, err)

	stream, ok := s.Streams().Get("late")
	require.True(t, ok)
	assert.True(t, stream.HasKind(domain.KindVideo), "producer announced during transport setup must not be dropped")
	assert.Contains(t, fake.resumedIDs(), "cons-prod-early")
}

func TestSessionPeerDeparture(t *testing.T) {
	fake := newFakeSignaling()
	fake.roster = []domain.PeerInfo{{
		ID:             "host",
		Name:           "Alice",
		IsHost:         true,
		AudioProducers: []string{"prod-a"},
	}}
	s := NewSession(fake)
	_, err := s.Join(context.Background(), "ROOM", "Bob")
	require.NoError(t, err)

	closed, err := signal.Encode(signal.TypeProducerClosed, 0, signal.ProducerClosed{
		PeerID:     "host",
		ProducerID: "prod-a",
	})
	require.NoError(t, err)
	var env signal.Envelope
	require.NoError(t, json.Unmarshal(closed, &env))
	s.HandleNotification(env)

	stream, ok := s.Streams().Get("host")
	require.True(t, ok)
	assert.False(t, stream.HasKind(domain.KindAudio))

	left, err := signal.Encode(signal.TypePeerLeft, 0, signal.PeerLeft{PeerID: "host"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(left, &env))
	s.HandleNotification(env)

	_, ok = s.Streams().Get("host")
	assert.False(t, ok)
	_, ok = s.PeerName("host")
	assert.False(t, ok)
}

func TestSessionLeaveResetsState(t *testing.T) {
	fake := newFakeSignaling()
	s := NewSession(fake)
	_, err := s.Join(context.Background(), "ROOM", "Alice")
	require.NoError(t, err)

	require.NoError(t, s.Leave(context.Background()))
	assert.ErrorIs(t, s.Leave(context.Background()), ErrNotJoined)
	_, err = s.Publish(context.Background(), domain.KindAudio)
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestDeviceLoad(t *testing.T) {
	d := NewDevice()
	assert.False(t, d.Loaded())
	_, err := d.RTPCapabilities()
	assert.ErrorIs(t, err, ErrDeviceNotLoaded)

	require.NoError(t, d.Load(media.RTPCapabilities{Codecs: media.DefaultCodecs()}))
	assert.True(t, d.Loaded())
	assert.True(t, d.CanProduce(domain.KindAudio))
	assert.True(t, d.CanProduce(domain.KindVideo))

	params, err := d.ProduceParameters(domain.KindAudio)
	require.NoError(t, err)
	require.Len(t, params.Codecs, 1)
	assert.Equal(t, "audio/opus", params.Codecs[0].MimeType)
	assert.Equal(t, uint8(111), params.Codecs[0].PayloadType)
}

func TestDeviceLoadNoSharedCodecs(t *testing.T) {
	d := NewDevice()
	err := d.Load(media.RTPCapabilities{Codecs: []media.RTPCodecCapability{
		{Kind: domain.KindVideo, MimeType: "video/H264", ClockRate: 90000},
	}})
	assert.ErrorIs(t, err, ErrNoCompatibleCodecs)
	assert.False(t, d.Loaded())
}

func TestDevicePartialIntersection(t *testing.T) {
	d := NewDevice()
	require.NoError(t, d.Load(media.RTPCapabilities{Codecs: []media.RTPCodecCapability{
		{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	}}))
	assert.True(t, d.CanProduce(domain.KindAudio))
	assert.False(t, d.CanProduce(domain.KindVideo))
	_, err := d.ProduceParameters(domain.KindVideo)
	assert.Error(t, err)
}
