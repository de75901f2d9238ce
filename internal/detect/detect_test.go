package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serveez-go/serveez/internal/alloc"
	"github.com/serveez-go/serveez/internal/binding"
	"github.com/serveez-go/serveez/internal/portcfg"
	"github.com/serveez-go/serveez/internal/socket"
)

type fakeInstance struct {
	name       string
	match      bool
	connected  bool
	handleSet  bool
}

func (f *fakeInstance) Name() string { return f.name }
func (f *fakeInstance) DetectProto(cfg any, s *socket.Socket) bool {
	return f.match
}
func (f *fakeInstance) ConnectSocket(cfg any, s *socket.Socket) error {
	f.connected = true
	s.CB.HandleRequest = func(*socket.Socket, []byte) error { return nil }
	f.handleSet = true
	return nil
}

func TestCheckRequest_NoWinnerWithinFill(t *testing.T) {
	s := socket.Alloc(alloc.NewAccounting(false))
	inst := &fakeInstance{name: "a", match: false}
	s.Data = binding.List{{Instance: inst, Port: portcfg.Port{}}}
	require.True(t, s.In.Append([]byte("hi")))

	err := CheckRequest(s, 1024)
	require.NoError(t, err)
	assert.False(t, s.Killed())
	assert.NotNil(t, s.Data)
}

func TestCheckRequest_OverflowSchedulesShutdown(t *testing.T) {
	s := socket.Alloc(alloc.NewAccounting(false))
	inst := &fakeInstance{name: "a", match: false}
	s.Data = binding.List{{Instance: inst, Port: portcfg.Port{}}}
	require.True(t, s.In.Append([]byte("0123456789")))

	err := CheckRequest(s, 4)
	require.NoError(t, err)
	assert.True(t, s.Killed())
}

func TestCheckRequest_Winner(t *testing.T) {
	s := socket.Alloc(alloc.NewAccounting(false))
	inst := &fakeInstance{name: "winner", match: true}
	s.Data = binding.List{{Instance: inst, Port: portcfg.Port{Name: "p"}}}
	require.True(t, s.In.Append([]byte("GET / HTTP/1.0\r\n")))

	err := CheckRequest(s, 1024)
	require.NoError(t, err)
	assert.Nil(t, s.Data)
	assert.Nil(t, s.IdleFunc)
	assert.True(t, inst.connected)
	assert.NotNil(t, s.CB.HandleRequest)
}
