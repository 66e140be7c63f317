// Package signal defines the closed wire schema of the signaling protocol.
// Every message is an Envelope; request payloads are validated at the
// boundary before any handler runs.
package signal

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"

	"github.com/avolkov/huddle/internal/domain"
	"github.com/avolkov/huddle/internal/media"
)

type MessageType string

// Client requests. Each expects a reply envelope carrying the same rid.
const (
	TypeJoinRoom             MessageType = "joinRoom"
	TypeCreateSendTransport  MessageType = "createSendTransport"
	TypeConnectSendTransport MessageType = "connectSendTransport"
	TypeProduce              MessageType = "produce"
	TypeCreateRecvTransport  MessageType = "createRecvTransport"
	TypeConnectRecvTransport MessageType = "connectRecvTransport"
	TypeConsume              MessageType = "consume"
	TypeResumeConsumer       MessageType = "resumeConsumer"
	TypeLeaveRoom            MessageType = "leaveRoom"
)

// Server messages. Response and Error echo the request rid; the rest are
// fire-and-forget notifications.
const (
	TypeResponse       MessageType = "response"
	TypeError          MessageType = "error"
	TypeNewPeer        MessageType = "newPeer"
	TypeNewProducer    MessageType = "newProducer"
	TypePeerLeft       MessageType = "peerLeft"
	TypeProducerClosed MessageType = "producerClosed"
)

var requestTypes = map[MessageType]bool{
	TypeJoinRoom:             true,
	TypeCreateSendTransport:  true,
	TypeConnectSendTransport: true,
	TypeProduce:              true,
	TypeCreateRecvTransport:  true,
	TypeConnectRecvTransport: true,
	TypeConsume:              true,
	TypeResumeConsumer:       true,
	TypeLeaveRoom:            true,
}

func IsRequest(t MessageType) bool { return requestTypes[t] }

// Envelope frames every message on the wire. rid correlates a reply with
// its request and is zero on notifications.
type Envelope struct {
	Type    MessageType     `json:"type"`
	RID     uint64          `json:"rid,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=64"`
}

type TransportRequest struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type ConnectTransportRequest struct {
	RoomID         string                `json:"roomId" validate:"required,max=64"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters" validate:"required"`
}

type ProduceRequest struct {
	RoomID        string              `json:"roomId" validate:"required,max=64"`
	Kind          domain.MediaKind    `json:"kind" validate:"required,oneof=audio video"`
	RTPParameters media.RTPParameters `json:"rtpParameters" validate:"required"`
}

type ConsumeRequest struct {
	RoomID          string                `json:"roomId" validate:"required,max=64"`
	ProducerID      string                `json:"producerId" validate:"required"`
	RTPCapabilities media.RTPCapabilities `json:"rtpCapabilities" validate:"required"`
}

type ResumeConsumerRequest struct {
	RoomID     string `json:"roomId" validate:"required,max=64"`
	ConsumerID string `json:"consumerId" validate:"required"`
}

type JoinRoomResponse struct {
	RTPCapabilities media.RTPCapabilities `json:"rtpCapabilities"`
	Peers           []domain.PeerInfo     `json:"peers"`
	IsHost          bool                  `json:"isHost"`
}

// Transport creation replies reuse media.ConnectParams verbatim.

type ProduceResponse struct {
	ID string `json:"id"`
}

type ConsumeResponse struct {
	ID            string              `json:"id"`
	ProducerID    string              `json:"producerId"`
	Kind          domain.MediaKind    `json:"kind"`
	RTPParameters media.RTPParameters `json:"rtpParameters"`
}

type NewPeer struct {
	ID     domain.PeerID `json:"id"`
	Name   string        `json:"name"`
	IsHost bool          `json:"isHost"`
}

type NewProducer struct {
	ProducerID string           `json:"producerId"`
	PeerID     domain.PeerID    `json:"peerId"`
	Kind       domain.MediaKind `json:"kind"`
}

type PeerLeft struct {
	PeerID domain.PeerID `json:"peerId"`
}

type ProducerClosed struct {
	PeerID     domain.PeerID `json:"peerId"`
	ProducerID string        `json:"producerId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodePayload unmarshals and validates a request payload.
func DecodePayload[T any](env Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return payload, nil
}

// Encode builds a wire frame for any message.
func Encode(t MessageType, rid uint64, payload any) ([]byte, error) {
	env := Envelope{Type: t, RID: rid}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
