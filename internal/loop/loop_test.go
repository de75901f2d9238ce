package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serveez-go/serveez/internal/registry"
	"github.com/serveez-go/serveez/internal/server"
	"github.com/serveez-go/serveez/internal/socket"
)

func TestDrainKilled_ShutsDownAndDequeues(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil)

	s := socket.Alloc(nil)
	require.NoError(t, reg.Enqueue(s))
	var disconnected bool
	s.CB.Disconnected = func(*socket.Socket) { disconnected = true }
	s.ScheduleShutdown()

	l.drainKilled()

	assert.True(t, disconnected)
	assert.False(t, s.Enqueued())
	assert.Equal(t, 0, reg.Len())
}

func TestRunTick_IdleCounterFires(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil)

	s := socket.Alloc(nil)
	require.NoError(t, reg.Enqueue(s))
	s.IdleCounter = 1
	fired := false
	s.CB.Idle = func(*socket.Socket) error {
		fired = true
		return nil
	}

	l.runTick()

	assert.True(t, fired)
	assert.Equal(t, 0, s.IdleCounter)
}

func TestRunTick_IdleFuncSchedulesShutdown(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil)

	s := socket.Alloc(nil)
	require.NoError(t, reg.Enqueue(s))
	s.LastRecv = time.Now().Add(-time.Hour)
	s.IdleFunc = func(sock *socket.Socket) error {
		sock.ScheduleShutdown()
		return nil
	}

	l.runTick()

	assert.True(t, s.Killed())
}

func TestRunTick_DecaysFloodPoints(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil)

	s := socket.Alloc(nil)
	require.NoError(t, reg.Enqueue(s))
	s.FloodPoints = 2

	l.runTick()
	assert.Equal(t, 1, s.FloodPoints)

	l.runTick()
	assert.Equal(t, 0, s.FloodPoints)

	l.runTick()
	assert.Equal(t, 0, s.FloodPoints)
}

func TestRunTick_NilServersSkipsNotify(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil)
	assert.NotPanics(t, func() { l.runTick() })
}

func TestRunTick_NotifiesEveryServerInstance(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil)

	types := server.NewRegistry()
	var notified int
	types.RegisterType(&server.Type{
		Name: "echo",
		CB: server.Callbacks{
			Notify: func() error {
				notified++
				return nil
			},
		},
	})
	_, err := types.NewInstance("one", "echo")
	require.NoError(t, err)
	_, err = types.NewInstance("two", "echo")
	require.NoError(t, err)

	l.Servers = types
	l.runTick()

	assert.Equal(t, 2, notified)
}

func TestShutdownSocket_Idempotent(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil)

	s := socket.Alloc(nil)
	require.NoError(t, reg.Enqueue(s))

	l.shutdownSocket(s)
	assert.False(t, s.Enqueued())

	// A second shutdown attempt (e.g. if a stray killed-flag check fires
	// again) must not panic even though the socket already left the
	// registry.
	assert.NotPanics(t, func() { l.shutdownSocket(s) })
}
