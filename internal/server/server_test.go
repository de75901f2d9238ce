package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serveez-go/serveez/internal/portcfg"
	"github.com/serveez-go/serveez/internal/socket"
)

func TestRegistry_NewInstance(t *testing.T) {
	r := NewRegistry()
	var connected bool
	r.RegisterType(&Type{
		Name: "echo",
		CB: Callbacks{
			Connect: func(cfg any, s *socket.Socket) error {
				connected = true
				return nil
			},
			HandleRequest: func(cfg any, s *socket.Socket, data []byte) error {
				return nil
			},
		},
	})

	inst, err := r.NewInstance("echo-1", "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo-1", inst.Name())

	s := socket.Alloc(nil)
	require.NoError(t, inst.ConnectSocket("cfg", s))
	assert.True(t, connected)
	require.NotNil(t, s.CB.HandleRequest)
}

func TestRegistry_DuplicateInstanceFails(t *testing.T) {
	r := NewRegistry()
	r.RegisterType(&Type{Name: "echo"})
	_, err := r.NewInstance("a", "echo")
	require.NoError(t, err)
	_, err = r.NewInstance("a", "echo")
	assert.Error(t, err)
}

func TestRegistry_UnregisterTypeRunsFinalize(t *testing.T) {
	r := NewRegistry()
	finalized := false
	r.RegisterType(&Type{Name: "t", CB: Callbacks{Finalize: func() error {
		finalized = true
		return nil
	}}})
	require.NoError(t, r.UnregisterType("t"))
	assert.True(t, finalized)
}

func TestRegistry_UnregisterTypeFailsWithLiveInstances(t *testing.T) {
	r := NewRegistry()
	r.RegisterType(&Type{Name: "t"})
	_, err := r.NewInstance("inst", "t")
	require.NoError(t, err)
	err = r.UnregisterType("t")
	assert.Error(t, err)
}

func TestInstance_DetectProtoDefaultsToMatch(t *testing.T) {
	r := NewRegistry()
	r.RegisterType(&Type{Name: "udp-ish"})
	inst, err := r.NewInstance("u", "udp-ish")
	require.NoError(t, err)
	assert.True(t, inst.DetectProto(nil, socket.Alloc(nil)))
}

func TestInstance_NotifyRunsTypeHook(t *testing.T) {
	r := NewRegistry()
	var notified int
	r.RegisterType(&Type{
		Name: "heartbeat",
		CB: Callbacks{
			Notify: func() error {
				notified++
				return nil
			},
		},
	})
	inst, err := r.NewInstance("h", "heartbeat")
	require.NoError(t, err)

	require.NoError(t, inst.Notify())
	require.NoError(t, inst.Notify())
	assert.Equal(t, 2, notified)
}

func TestInstance_ConnectSocketAppliesFloodLimit(t *testing.T) {
	r := NewRegistry()
	r.RegisterType(&Type{Name: "echo"})
	inst, err := r.NewInstance("e", "echo")
	require.NoError(t, err)

	s := socket.Alloc(nil)
	require.Equal(t, socket.DefaultFloodLimit, s.FloodLimit)

	require.NoError(t, inst.ConnectSocket(portcfg.Port{FloodLimit: 25}, s))
	assert.Equal(t, 25, s.FloodLimit)
}

func TestInstance_ConnectSocketIgnoresZeroFloodLimit(t *testing.T) {
	r := NewRegistry()
	r.RegisterType(&Type{Name: "echo"})
	inst, err := r.NewInstance("e2", "echo")
	require.NoError(t, err)

	s := socket.Alloc(nil)
	require.NoError(t, inst.ConnectSocket(portcfg.Port{}, s))
	assert.Equal(t, socket.DefaultFloodLimit, s.FloodLimit)
}

func TestInstance_NotifyNilHookIsNoop(t *testing.T) {
	r := NewRegistry()
	r.RegisterType(&Type{Name: "quiet"})
	inst, err := r.NewInstance("q", "quiet")
	require.NoError(t, err)
	assert.NoError(t, inst.Notify())
}
