// Package binding resolves (server instance × port configuration) pairs to
// listener sockets, merging INADDR_ANY shadowing and filtering accepts
// (spec.md §4.7 "Binding manager").
package binding

import (
	"fmt"
	"sort"

	"github.com/serveez-go/serveez/internal/container"
	"github.com/serveez-go/serveez/internal/portcfg"
	"github.com/serveez-go/serveez/internal/rate"
	"github.com/serveez-go/serveez/internal/socket"
)

// Instance is the subset of a server instance's contract the binding layer
// needs: enough to run protocol detection and hand off a winning socket
// (spec.md §4.6). The full server instance type lives in internal/server;
// this interface is defined on the consumer side to avoid an import cycle.
type Instance interface {
	Name() string
	DetectProto(cfg any, s *socket.Socket) bool
	ConnectSocket(cfg any, s *socket.Socket) error
}

// Binding pairs one server instance with the port configuration it was
// bound against (spec.md §3 "Binding").
type Binding struct {
	Instance Instance
	Port     portcfg.Port
}

// List is a listener's ordered set of bindings (spec.md §3: "A listener
// socket owns an ordered list of bindings").
type List []*Binding

// Listener tracks one listening/endpoint socket, its bindings, and its
// per-peer accept-rate tracker. Bindings are stored in a container.Array:
// this list is only ever appended to and walked in order, never indexed
// mid-list, so the plain growable-array wrapper fits rather than AList's
// stable-index-insert semantics (which the detector's candidate handling
// doesn't need either).
type Listener struct {
	Sock     *socket.Socket
	bindings *container.Array[*Binding]
	Tracker  *rate.Tracker
	key      endpointKey
}

// Bindings returns the listener's current ordered binding list.
func (l *Listener) Bindings() List {
	return List(l.bindings.Slice())
}

// AddBinding appends b to the listener's binding list.
func (l *Listener) AddBinding(b *Binding) {
	l.bindings.Append(b)
}

type endpointKey struct {
	proto portcfg.Proto
	addr  string
	port  int
}

func keyOf(p portcfg.Port) endpointKey {
	return endpointKey{proto: p.Proto, addr: p.IPAddr, port: p.PortNumber}
}

// Manager owns every live Listener, keyed by (protocol, address, port), and
// implements the bind-time merge rules of spec.md §4.7.
type Manager struct {
	listeners map[endpointKey]*Listener
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{listeners: make(map[endpointKey]*Listener)}
}

// Listeners returns every currently live listener, sorted by address:port
// for deterministic iteration (tests, status endpoint).
func (m *Manager) Listeners() []*Listener {
	out := make([]*Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.addr != out[j].key.addr {
			return out[i].key.addr < out[j].key.addr
		}
		return out[i].key.port < out[j].key.port
	})
	return out
}

// ShadowedListener is returned by Reserve when an INADDR_ANY bind must tear
// down a pre-existing address-specific listener first (spec.md §6
// "INADDR_ANY shadowing"): its Sock must be dequeued/closed and its
// Bindings re-attached to the fresh ANY listener by the caller, since only
// the caller (which owns the reactor/registry) can safely tear a socket
// down mid-loop.
type ShadowedListener struct {
	Listener *Listener
}

// Reserve finds or creates the bookkeeping entry for one expanded port
// configuration (already address-specific, i.e. post-portcfg.Expand), and
// reports any existing address-specific listener on the same protocol/port
// that a fresh INADDR_ANY bind must shadow.
//
// Reserve never creates the OS socket itself; callers use the returned
// Listener's zero Sock as a signal to open one via internal/transport and
// then call Attach.
func (m *Manager) Reserve(p portcfg.Port) (*Listener, []*ShadowedListener, error) {
	k := keyOf(p)
	if l, ok := m.listeners[k]; ok {
		return l, nil, nil
	}

	var shadowed []*ShadowedListener
	if p.IsAny() {
		for ek, l := range m.listeners {
			if ek.proto == p.Proto && ek.port == p.PortNumber && ek.addr != portcfg.AnyAddress {
				shadowed = append(shadowed, &ShadowedListener{Listener: l})
				delete(m.listeners, ek)
			}
		}
	} else {
		if any, ok := m.listeners[endpointKey{proto: p.Proto, addr: portcfg.AnyAddress, port: p.PortNumber}]; ok {
			// An ANY listener already covers this address; fold the new
			// binding into it rather than creating a shadowed duplicate.
			return any, nil, nil
		}
	}

	l := &Listener{key: k, bindings: container.NewArray[*Binding](0)}
	m.listeners[k] = l
	return l, shadowed, nil
}

// Attach installs sock as the listener's socket and migrates any shadowed
// listener's bindings onto it, then adds newBinding.
func (m *Manager) Attach(l *Listener, sock *socket.Socket, shadowed []*ShadowedListener, newBinding *Binding) {
	l.Sock = sock
	if l.Tracker == nil {
		l.Tracker = rate.NewTracker()
	}
	for _, sh := range shadowed {
		for _, b := range sh.Listener.Bindings() {
			l.bindings.Append(b)
		}
	}
	if newBinding != nil {
		l.bindings.Append(newBinding)
	}
}

// Remove drops a listener from the manager, e.g. on shutdown.
func (m *Manager) Remove(l *Listener) {
	delete(m.listeners, l.key)
}

// Find looks up the listener for an exact (proto, addr, port).
func (m *Manager) Find(proto portcfg.Proto, addr string, port int) (*Listener, bool) {
	l, ok := m.listeners[endpointKey{proto: proto, addr: addr, port: port}]
	return l, ok
}

// Describe is a human-readable summary, used in logs and the status
// endpoint.
func (l *Listener) Describe() string {
	bindings := l.Bindings()
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.Instance.Name()
	}
	return fmt.Sprintf("%s:%d [%v]", l.key.addr, l.key.port, names)
}
