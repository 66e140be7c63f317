package signalws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("peer"), "attempt %d", i)
	}
	assert.False(t, rl.Allow("peer"))

	// Independent window per peer.
	assert.True(t, rl.Allow("other"))
}

func TestJoinRateLimiterWindowExpiry(t *testing.T) {
	rl := NewJoinRateLimiter(2, 20*time.Millisecond)

	assert.True(t, rl.Allow("peer"))
	assert.True(t, rl.Allow("peer"))
	assert.False(t, rl.Allow("peer"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("peer"))
}
