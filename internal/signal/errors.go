package signal

import (
	"errors"

	"github.com/avolkov/huddle/internal/domain"
)

// Wire error codes. Clients branch on the code, the message is for humans.
const (
	CodeBadRequest         = "badRequest"
	CodeRoomNotFound       = "roomNotFound"
	CodePeerNotFound       = "peerNotFound"
	CodePeerExists         = "peerExists"
	CodeTransportNotReady  = "transportNotReady"
	CodeCannotConsume      = "cannotConsume"
	CodeConsumerNotFound   = "consumerNotFound"
	CodeNegotiationFailure = "negotiationFailure"
)

// ErrorCode maps a coordinator error to its wire code. Anything not in the
// closed error set is reported as a negotiation failure.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrPeerNotFound):
		return CodePeerNotFound
	case errors.Is(err, domain.ErrPeerExists):
		return CodePeerExists
	case errors.Is(err, domain.ErrTransportNotReady):
		return CodeTransportNotReady
	case errors.Is(err, domain.ErrCannotConsume):
		return CodeCannotConsume
	case errors.Is(err, domain.ErrConsumerNotFound):
		return CodeConsumerNotFound
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong):
		return CodeBadRequest
	default:
		return CodeNegotiationFailure
	}
}
