package domain

import "errors"

// Error kinds surfaced to the requesting client. The signaling adapter maps
// them to wire error codes; nothing here ever tears down the connection.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrPeerExists        = errors.New("peer already joined")
	ErrTransportNotReady = errors.New("transport not ready")
	ErrCannotConsume     = errors.New("cannot consume")
	ErrConsumerNotFound  = errors.New("consumer not found")
)
