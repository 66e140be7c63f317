package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/huddle/internal/domain"
)

func TestRegistryGetOrCreate(t *testing.T) {
	reg := NewRegistry()

	room, created := reg.GetOrCreate("ABC")
	require.NotNil(t, room)
	assert.True(t, created)

	again, created := reg.GetOrCreate("ABC")
	assert.Same(t, room, again)
	assert.False(t, created)

	other, created := reg.GetOrCreate("XYZ")
	assert.True(t, created)
	assert.NotSame(t, room, other)
}

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	reg := NewRegistry()

	const joiners = 64
	var createdCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created := reg.GetOrCreate("ABC")
			if created {
				createdCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), createdCount.Load(), "exactly one joiner may observe room creation")
}

func TestRegistryRemoveIfEmpty(t *testing.T) {
	reg := NewRegistry()
	room, _ := reg.GetOrCreate("ABC")

	_, err := room.AddPeer(NewPeer("p1", "alice", true, &fakeSink{}), nil)
	require.NoError(t, err)

	_, ok := reg.RemoveIfEmpty("ABC")
	assert.False(t, ok, "occupied room must not be removed")

	_, _, err = room.RemovePeer("p1")
	require.NoError(t, err)

	removed, ok := reg.RemoveIfEmpty("ABC")
	assert.True(t, ok)
	assert.Same(t, room, removed)

	_, ok = reg.Get("ABC")
	assert.False(t, ok)

	// A join racing the removal sees the closed flag and can retry.
	_, err = room.AddPeer(NewPeer("p2", "bob", false, &fakeSink{}), nil)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

// TestRegistryRemoveIfEmptyRace interleaves joins with removal attempts. A
// successful AddPeer must pin the room in the registry: the emptiness check
// and the close run in one room critical section, so a join can never land
// between them and end up stranded in a deleted room.
func TestRegistryRemoveIfEmptyRace(t *testing.T) {
	const rounds = 2000

	for i := 0; i < rounds; i++ {
		reg := NewRegistry()
		reg.GetOrCreate("ABC")

		var wg sync.WaitGroup
		wg.Add(2)
		joined := make(chan *Room, 1)
		go func() {
			defer wg.Done()
			for {
				room, _ := reg.GetOrCreate("ABC")
				_, err := room.AddPeer(NewPeer("p1", "alice", true, &fakeSink{}), nil)
				if err == nil {
					joined <- room
					return
				}
				// Lost to a racing removal; retry against a fresh room.
			}
		}()
		go func() {
			defer wg.Done()
			reg.RemoveIfEmpty("ABC")
		}()
		wg.Wait()

		room := <-joined
		current, ok := reg.Get("ABC")
		require.True(t, ok, "room holding a peer was removed")
		require.Same(t, room, current)
		require.Equal(t, 1, current.PeerCount())
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	room, _ := reg.GetOrCreate("ABC")
	_, err := room.AddPeer(NewPeer("p1", "alice", true, &fakeSink{}), nil)
	require.NoError(t, err)
	reg.GetOrCreate("XYZ")

	infos := reg.List()
	require.Len(t, infos, 2)
	counts := map[domain.RoomID]int{}
	for _, info := range infos {
		counts[info.ID] = info.PeerCount
	}
	assert.Equal(t, 1, counts["ABC"])
	assert.Equal(t, 0, counts["XYZ"])
}
