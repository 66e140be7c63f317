package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/huddle/internal/domain"
)

func envelope(t *testing.T, typ MessageType, rid uint64, payload string) Envelope {
	t.Helper()
	return Envelope{Type: typ, RID: rid, Payload: json.RawMessage(payload)}
}

func TestEncodeRoundTrip(t *testing.T) {
	frame, err := Encode(TypeNewProducer, 0, NewProducer{
		ProducerID: "prod-1",
		PeerID:     "peer-1",
		Kind:       domain.KindVideo,
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, TypeNewProducer, env.Type)
	assert.Zero(t, env.RID)

	np, err := DecodePayload[NewProducer](env)
	require.NoError(t, err)
	assert.Equal(t, "prod-1", np.ProducerID)
	assert.Equal(t, domain.KindVideo, np.Kind)
}

func TestEncodeOmitsEmptyPayload(t *testing.T) {
	frame, err := Encode(TypeResponse, 7, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","rid":7}`, string(frame))
}

func TestIsRequest(t *testing.T) {
	for _, typ := range []MessageType{
		TypeJoinRoom, TypeCreateSendTransport, TypeConnectSendTransport,
		TypeProduce, TypeCreateRecvTransport, TypeConnectRecvTransport,
		TypeConsume, TypeResumeConsumer, TypeLeaveRoom,
	} {
		assert.True(t, IsRequest(typ), string(typ))
	}
	for _, typ := range []MessageType{
		TypeResponse, TypeError, TypeNewPeer, TypeNewProducer,
		TypePeerLeft, TypeProducerClosed, MessageType("bogus"),
	} {
		assert.False(t, IsRequest(typ), string(typ))
	}
}

func TestDecodeJoinRoomValidation(t *testing.T) {
	ok, err := DecodePayload[JoinRoomRequest](envelope(t, TypeJoinRoom, 1, `{"roomId":"ROOM","name":"Alice"}`))
	require.NoError(t, err)
	assert.Equal(t, "ROOM", ok.RoomID)

	cases := map[string]string{
		"missing name":  `{"roomId":"ROOM"}`,
		"empty room":    `{"roomId":"","name":"Alice"}`,
		"oversize name": fmt.Sprintf(`{"roomId":"ROOM","name":%q}`, strings.Repeat("x", 65)),
		"not json":      `{"roomId":`,
	}
	for label, raw := range cases {
		_, err := DecodePayload[JoinRoomRequest](envelope(t, TypeJoinRoom, 1, raw))
		assert.Error(t, err, label)
	}
}

func TestDecodeProduceKindIsClosed(t *testing.T) {
	valid := `{"roomId":"ROOM","kind":"audio","rtpParameters":{"codecs":[{"mimeType":"audio/opus","payloadType":111,"clockRate":48000}]}}`
	_, err := DecodePayload[ProduceRequest](envelope(t, TypeProduce, 2, valid))
	require.NoError(t, err)

	screen := `{"roomId":"ROOM","kind":"screen","rtpParameters":{"codecs":[]}}`
	_, err = DecodePayload[ProduceRequest](envelope(t, TypeProduce, 2, screen))
	assert.Error(t, err, "kind outside audio/video must be rejected")
}

func TestDecodeConsumeRequiresProducerID(t *testing.T) {
	_, err := DecodePayload[ConsumeRequest](envelope(t, TypeConsume, 3, `{"roomId":"ROOM","rtpCapabilities":{"codecs":[]}}`))
	assert.Error(t, err)
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{domain.ErrRoomNotFound, CodeRoomNotFound},
		{domain.ErrPeerNotFound, CodePeerNotFound},
		{domain.ErrPeerExists, CodePeerExists},
		{domain.ErrTransportNotReady, CodeTransportNotReady},
		{domain.ErrCannotConsume, CodeCannotConsume},
		{domain.ErrConsumerNotFound, CodeConsumerNotFound},
		{domain.ErrNameEmpty, CodeBadRequest},
		{domain.ErrNameTooLong, CodeBadRequest},
		{errors.New("engine exploded"), CodeNegotiationFailure},
		{fmt.Errorf("consume: %w", domain.ErrCannotConsume), CodeCannotConsume},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, ErrorCode(tc.err), tc.err.Error())
	}
}
