package domain

import (
	"strings"

	"github.com/google/uuid"
)

// RoomID is an opaque meeting identifier. It is either supplied by the
// client that creates the meeting or generated with NewRoomID.
type RoomID string

// NewRoomID returns a short shareable meeting code.
func NewRoomID() RoomID {
	id := uuid.NewString()
	return RoomID(strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8]))
}
