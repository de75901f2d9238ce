// Package server implements the server-type descriptor and the named
// server-instance registry (spec.md §3 "server instances", §4.7, §4.10
// dynamic loader target).
package server

import (
	"fmt"
	"sync"

	"github.com/serveez-go/serveez/internal/container"
	"github.com/serveez-go/serveez/internal/portcfg"
	"github.com/serveez-go/serveez/internal/socket"
)

// Callbacks is the small set of hooks a server type provides (spec.md §1
// "Applications plug in by providing a small set of callbacks (detect_proto,
// connect, handle_request, idle, finalize) and declaring a typed
// configuration schema").
type Callbacks struct {
	// DetectProto runs during protocol detection (spec.md §4.6); cfg is the
	// bound portcfg.Port for this instance, s is the candidate socket.
	DetectProto func(cfg any, s *socket.Socket) bool

	// Connect installs handle_request (and optionally a boundary or
	// replacement check_request) once DetectProto wins, or immediately for
	// UDP/ICMP/pipe server types that skip detection.
	Connect func(cfg any, s *socket.Socket) error

	// HandleRequest processes one complete framed request (spec.md §4.1).
	HandleRequest func(cfg any, s *socket.Socket, data []byte) error

	// Idle runs once per periodic tick while the socket lives (spec.md
	// §4.10). Optional.
	Idle func(cfg any, s *socket.Socket) error

	// Finalize runs once, when the last instance of a server type is
	// removed (spec.md §4.10 dynamic loader "finalize" hook). Optional.
	Finalize func() error

	// Notify runs once per periodic tick for every live instance of this
	// type, independent of any socket (spec.md §2 component table's
	// periodic scheduler "instance notify", required by §4.9 step 7).
	// Unlike Idle, it fires even for instances with no connected sockets
	// at all, so it takes no per-socket cfg; a type that needs
	// configuration closes over it when building the callback. Optional.
	Notify func() error
}

// Type is a server type descriptor: a name plus the callback set every
// instance of that type shares. Dynamically loaded server types (spec.md
// §4.11) register themselves under a Type via internal/loader.
type Type struct {
	Name string
	CB   Callbacks
}

// Instance is one configured, named instance of a Type, bound to zero or
// more ports. It satisfies internal/binding.Instance and
// internal/detect's consumer-side expectations.
type Instance struct {
	InstanceName string
	Type         *Type
}

// Name returns the instance's configured name (spec.md §3 "named server
// instances").
func (i *Instance) Name() string { return i.InstanceName }

// DetectProto delegates to the owning type's callback, treating a nil
// callback as "always matches" (spec.md §4.5: UDP/ICMP/pipe servers commonly
// skip detection and connect unconditionally).
func (i *Instance) DetectProto(cfg any, s *socket.Socket) bool {
	if i.Type.CB.DetectProto == nil {
		return true
	}
	return i.Type.CB.DetectProto(cfg, s)
}

// ConnectSocket delegates to the owning type's Connect callback and wires
// HandleRequest and Idle as the socket's CB.HandleRequest and CB.Idle. It
// also applies the bound
// port's flood_limit (spec.md §4.8) to the socket, overriding the
// socket.DefaultFloodLimit a freshly accepted socket starts with.
func (i *Instance) ConnectSocket(cfg any, s *socket.Socket) error {
	if p, ok := cfg.(portcfg.Port); ok && p.FloodLimit > 0 {
		s.FloodLimit = p.FloodLimit
	}
	if i.Type.CB.HandleRequest != nil {
		hr := i.Type.CB.HandleRequest
		s.CB.HandleRequest = func(sock *socket.Socket, data []byte) error {
			return hr(cfg, sock, data)
		}
	}
	if i.Type.CB.Idle != nil {
		s.CB.Idle = func(sock *socket.Socket) error {
			return i.Idle(cfg, sock)
		}
	}
	if i.Type.CB.Connect != nil {
		return i.Type.CB.Connect(cfg, s)
	}
	return nil
}

// Idle runs the type's Idle hook, if any.
func (i *Instance) Idle(cfg any, s *socket.Socket) error {
	if i.Type.CB.Idle == nil {
		return nil
	}
	return i.Type.CB.Idle(cfg, s)
}

// Notify runs the type's Notify hook, if any, once per tick regardless of
// whether this instance owns any connected sockets (spec.md §4.9 step 7).
func (i *Instance) Notify() error {
	if i.Type.CB.Notify == nil {
		return nil
	}
	return i.Type.CB.Notify()
}

// Registry is the process-wide name → instance map plus the set of loaded
// types (spec.md §4.10, §4.11). The two tables are container.Hash (the
// same "wrap the stdlib map behind a small generic type" style the teacher
// favors over a bare map+mutex); mu additionally serializes the compound
// check-then-delete in UnregisterType, which touches both tables and needs
// more than either Hash's own per-call locking gives it.
type Registry struct {
	mu        sync.Mutex
	types     *container.Hash[*Type]
	instances *container.Hash[*Instance]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		types:     container.NewHash[*Type](),
		instances: container.NewHash[*Instance](),
	}
}

// RegisterType adds (or replaces) a server type descriptor, as the loader
// does when a plugin registers itself (spec.md §4.11).
func (r *Registry) RegisterType(t *Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types.Set(t.Name, t)
}

// UnregisterType removes a type descriptor and runs its Finalize hook if no
// instances of it remain (spec.md §4.10 "finalize ... when the last
// instance of a server type is removed").
func (r *Registry) UnregisterType(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types.Get(name)
	if !ok {
		return fmt.Errorf("server: unknown type %q", name)
	}
	var stillLive bool
	r.instances.Each(func(_ string, inst *Instance) bool {
		if inst.Type == t {
			stillLive = true
			return false
		}
		return true
	})
	if stillLive {
		return fmt.Errorf("server: type %q still has live instances", name)
	}
	r.types.Delete(name)
	if t.CB.Finalize != nil {
		return t.CB.Finalize()
	}
	return nil
}

// NewInstance creates and registers a named instance of typeName.
func (r *Registry) NewInstance(instanceName, typeName string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances.Get(instanceName); exists {
		return nil, fmt.Errorf("server: instance %q already exists", instanceName)
	}
	t, ok := r.types.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("server: unknown type %q", typeName)
	}
	inst := &Instance{InstanceName: instanceName, Type: t}
	r.instances.Set(instanceName, inst)
	return inst, nil
}

// RemoveInstance drops a named instance. Callers are responsible for
// unbinding it from every listener first.
func (r *Registry) RemoveInstance(name string) {
	r.instances.Delete(name)
}

// Instance looks up a named instance.
func (r *Registry) Instance(name string) (*Instance, bool) {
	return r.instances.Get(name)
}

// Instances returns every live instance.
func (r *Registry) Instances() []*Instance {
	out := make([]*Instance, 0, r.instances.Len())
	r.instances.Each(func(_ string, inst *Instance) bool {
		out = append(out, inst)
		return true
	})
	return out
}
