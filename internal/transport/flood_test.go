package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/serveez-go/serveez/internal/socket"
)

func TestAccountFlood_StaysUnderLimit(t *testing.T) {
	s := socket.Alloc(nil)
	kicked := false
	s.CB.Kicked = func(sock *socket.Socket, reason socket.KickReason) { kicked = true }

	assert.False(t, accountFlood(s, 40))
	assert.False(t, kicked)
	assert.False(t, s.Killed())
}

func TestAccountFlood_KicksOnceOverLimit(t *testing.T) {
	s := socket.Alloc(nil)
	s.FloodLimit = 10
	var reason socket.KickReason
	s.CB.Kicked = func(sock *socket.Socket, r socket.KickReason) { reason = r }

	assert.False(t, accountFlood(s, 100)) // 1 + 100/50 = 3, under 10
	assert.True(t, accountFlood(s, 500))  // + 1 + 500/50 = 11 -> exceeds 10
	assert.Equal(t, socket.KickFlood, reason)
	assert.True(t, s.Killed())
}

func TestAccountFlood_ZeroLimitNeverKicks(t *testing.T) {
	s := socket.Alloc(nil)
	s.FloodLimit = 0
	s.CB.Kicked = func(sock *socket.Socket, r socket.KickReason) {
		t.Fatalf("Kicked should not fire with flood protection disabled")
	}

	for i := 0; i < 100; i++ {
		assert.False(t, accountFlood(s, 10000))
	}
	assert.False(t, s.Killed())
}
