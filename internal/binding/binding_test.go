package binding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serveez-go/serveez/internal/container"
	"github.com/serveez-go/serveez/internal/portcfg"
	"github.com/serveez-go/serveez/internal/socket"
)

func newTestListener(bindings ...*Binding) *Listener {
	arr := container.NewArray[*Binding](0)
	for _, b := range bindings {
		arr.Append(b)
	}
	return &Listener{bindings: arr}
}

type stubInstance struct{ name string }

func (s *stubInstance) Name() string                                  { return s.name }
func (s *stubInstance) DetectProto(cfg any, sock *socket.Socket) bool { return false }
func (s *stubInstance) ConnectSocket(cfg any, sock *socket.Socket) error {
	return nil
}

func TestManager_ReserveCreatesOnce(t *testing.T) {
	m := NewManager()
	p := portcfg.Port{Proto: portcfg.ProtoTCP, IPAddr: "192.168.1.5", PortNumber: 9000}

	l1, shadowed, err := m.Reserve(p)
	require.NoError(t, err)
	assert.Empty(t, shadowed)

	l2, shadowed2, err := m.Reserve(p)
	require.NoError(t, err)
	assert.Empty(t, shadowed2)
	assert.Same(t, l1, l2)
}

func TestManager_ANYShadowsSpecific(t *testing.T) {
	m := NewManager()
	specific := portcfg.Port{Proto: portcfg.ProtoTCP, IPAddr: "192.168.1.5", PortNumber: 9000}
	l, _, err := m.Reserve(specific)
	require.NoError(t, err)
	m.Attach(l, &socket.Socket{}, nil, &Binding{Instance: &stubInstance{name: "a"}, Port: specific})

	any := portcfg.Port{Proto: portcfg.ProtoTCP, IPAddr: portcfg.AnyAddress, PortNumber: 9000}
	anyListener, shadowed, err := m.Reserve(any)
	require.NoError(t, err)
	require.Len(t, shadowed, 1)
	assert.Same(t, l, shadowed[0].Listener)

	m.Attach(anyListener, &socket.Socket{}, shadowed, &Binding{Instance: &stubInstance{name: "b"}, Port: any})
	assert.Len(t, anyListener.Bindings(), 2)

	_, stillThere := m.Find(portcfg.ProtoTCP, "192.168.1.5", 9000)
	assert.False(t, stillThere)
}

func TestCheckAccept_DenyList(t *testing.T) {
	l := newTestListener(&Binding{Port: portcfg.Port{Deny: []string{"10.0.0.0/8"}}})
	decision := l.CheckAccept("10.1.2.3", 0, time.Now())
	assert.Equal(t, RejectDeny, decision)
}

func TestCheckAccept_AllowListExcludesOthers(t *testing.T) {
	l := newTestListener(&Binding{Port: portcfg.Port{Allow: []string{"192.168.1.0/24"}}})
	assert.Equal(t, RejectNotAllowed, l.CheckAccept("10.1.2.3", 0, time.Now()))
	assert.Equal(t, Accept, l.CheckAccept("192.168.1.9", 0, time.Now()))
}

func TestCheckAccept_Frequency(t *testing.T) {
	m := NewManager()
	p := portcfg.Port{Proto: portcfg.ProtoTCP, IPAddr: "127.0.0.1", PortNumber: 6000, ConnectFreq: 1}
	l, _, err := m.Reserve(p)
	require.NoError(t, err)
	m.Attach(l, &socket.Socket{}, nil, &Binding{Instance: &stubInstance{name: "x"}, Port: p})

	now := time.Unix(5000, 0)
	rejected := false
	for i := 0; i < 20; i++ {
		d := l.CheckAccept("1.2.3.4", p.ConnectFreq, now.Add(time.Duration(i)*50*time.Millisecond))
		if d == RejectFrequency {
			rejected = true
		}
	}
	assert.True(t, rejected)
}
