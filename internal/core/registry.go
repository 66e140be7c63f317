package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/huddle/internal/domain"
)

// Registry is the process-wide room map. GetOrCreate is the single atomic
// step the host flag is derived from: exactly one concurrent caller for an
// unseen id observes created=true.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*Room)}
}

func (reg *Registry) GetOrCreate(id domain.RoomID) (*Room, bool) {
	reg.mu.RLock()
	room, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if ok {
		return room, false
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok = reg.rooms[id]; ok {
		return room, false
	}
	room = NewRoom(id)
	reg.rooms[id] = room
	log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room created")
	return room, true
}

func (reg *Registry) Get(id domain.RoomID) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// RemoveIfEmpty drops the room once its peer set is empty and returns it so
// the caller can release the router. Joins racing the removal observe the
// closed flag and retry.
func (reg *Registry) RemoveIfEmpty(id domain.RoomID) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[id]
	if !ok || !room.closeIfEmpty() {
		return nil, false
	}
	delete(reg.rooms, id)
	log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("empty room removed")
	return room, true
}

type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	PeerCount int           `json:"peerCount"`
}

func (reg *Registry) List() []RoomInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]RoomInfo, 0, len(reg.rooms))
	for id, room := range reg.rooms {
		out = append(out, RoomInfo{ID: id, PeerCount: room.PeerCount()})
	}
	return out
}
