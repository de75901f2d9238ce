// Package registry implements the socket registry (spec.md §3, §4.2): an
// insertion-ordered doubly linked list plus a direct-indexed id table.
//
// The original source uses raw pointers and a "referrer" back-reference; per
// spec.md §9 design notes this is reimplemented as registry-owned handles
// (the node pointer) plus the 13-bit id / 16-bit version pair already named
// in the data model, so Find(id, version) models the weak-reference lookup
// exactly as the original "referrer" dereference did, without a dangling
// pointer ever being reachable.
package registry

import (
	"fmt"

	"github.com/serveez-go/serveez/internal/container"
	"github.com/serveez-go/serveez/internal/socket"
)

// IDSpace is the id table size: ids are 13-bit (0..8191).
const IDSpace = 8192

// Node is a registry-owned list element. Node pointers are never exposed
// outside Registry; callers identify a socket by (id, version).
type node struct {
	sock *socket.Socket
	next *node
	prev *node
}

// Registry is the socket registry: root/last doubly linked list plus
// table[id] for O(1) lookup.
type Registry struct {
	root *node
	last *node

	lastListener *node // the last node that is a listener; nil if none

	// table[id] gives O(1) lookup by socket id. A container.AList fits
	// this exactly: ids are stable array indices assigned once and
	// reused only after a full id-space wrap, the same shape as the
	// original source's sparse peer table (spec.md §9 open question (a)).
	table *container.AList[*node]

	nextID      uint16
	nextVersion uint16

	rechainCount int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{table: container.NewAList[*node]()}
}

// Len reports the number of enqueued sockets.
func (r *Registry) Len() int {
	n := 0
	for cur := r.root; cur != nil; cur = cur.next {
		n++
	}
	return n
}

// UniqueID assigns the next free id and a new version to sock, without
// enqueuing it. The id space wraps at IDSpace; ids already present in the
// table are skipped.
func (r *Registry) UniqueID(sock *socket.Socket) error {
	start := r.nextID
	for {
		id := r.nextID
		r.nextID = (r.nextID + 1) % IDSpace
		if r.tableGet(id) == nil {
			sock.ID = id
			sock.Version = r.nextVersion
			r.nextVersion++
			return nil
		}
		if r.nextID == start {
			return fmt.Errorf("registry: id space exhausted")
		}
	}
}

// tableGet returns the node at id, or nil if id is out of range or empty.
func (r *Registry) tableGet(id uint16) *node {
	n, _ := r.table.Get(int(id))
	return n
}

// Enqueue inserts sock into the registry. It requires sock not already be
// enqueued and assigns it an id/version if it doesn't have one reserved via
// UniqueID already (id 0 with version 0 and not present in the table is
// treated as "needs assignment").
func (r *Registry) Enqueue(sock *socket.Socket) error {
	if sock.Enqueued() {
		return fmt.Errorf("registry: socket %d already enqueued", sock.ID)
	}
	if r.tableGet(sock.ID) != nil {
		if err := r.UniqueID(sock); err != nil {
			return err
		}
	} else if sock.ID == 0 && sock.Version == 0 {
		// No id reserved yet: assign one now.
		if err := r.UniqueID(sock); err != nil {
			return err
		}
	}

	n := &node{sock: sock}

	if sock.Flags.Has(socket.FlagListening) {
		// Insert right after the current last listener (or at the head),
		// keeping all listeners contiguous at the front in arrival order.
		if r.lastListener == nil {
			n.next = r.root
			if r.root != nil {
				r.root.prev = n
			}
			r.root = n
		} else {
			n.next = r.lastListener.next
			n.prev = r.lastListener
			if r.lastListener.next != nil {
				r.lastListener.next.prev = n
			}
			r.lastListener.next = n
		}
		if n.next == nil {
			r.last = n
		}
		r.lastListener = n
	} else {
		n.prev = r.last
		if r.last != nil {
			r.last.next = n
		} else {
			r.root = n
		}
		r.last = n
	}

	r.table.Insert(int(sock.ID), n)
	sock.Flags |= socket.FlagEnqueued
	return nil
}

// Dequeue removes sock from the registry. Double dequeue fails with a
// diagnostic rather than corrupting the list (spec.md §4.2).
func (r *Registry) Dequeue(sock *socket.Socket) error {
	n := r.tableGet(sock.ID)
	if n == nil || n.sock != sock {
		return fmt.Errorf("registry: socket %d not enqueued", sock.ID)
	}

	if n.prev != nil {
		n.prev.next = n.next
	} else {
		r.root = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		r.last = n.prev
	}
	if r.lastListener == n {
		if n.prev != nil && n.prev.sock.Flags.Has(socket.FlagListening) {
			r.lastListener = n.prev
		} else {
			r.lastListener = nil
		}
	}

	r.table.Delete(int(sock.ID))
	sock.Flags &^= socket.FlagEnqueued
	return nil
}

// Find looks up a socket by id. If version >= 0, the socket's version must
// match (version acts as the reused-id disambiguator from spec.md §3).
func (r *Registry) Find(id uint16, version int) (*socket.Socket, bool) {
	if int(id) >= IDSpace {
		return nil, false
	}
	n := r.tableGet(id)
	if n == nil {
		return nil, false
	}
	if version >= 0 && int(n.sock.Version) != version {
		return nil, false
	}
	return n.sock, true
}

// Each walks every enqueued socket in list order. fn returning false stops
// the walk.
func (r *Registry) Each(fn func(*socket.Socket) bool) {
	for cur := r.root; cur != nil; cur = cur.next {
		if !fn(cur.sock) {
			return
		}
	}
}

// Rechain moves the tail node to just after the last listener, producing
// round-robin fairness across non-listening sockets every call (spec.md
// §4.2, driven by the loop every 16 iterations). Listeners are never moved.
func (r *Registry) Rechain() {
	if r.last == nil || r.last == r.lastListener {
		return // nothing to move, or only listeners are enqueued
	}
	tail := r.last
	if r.lastListener != nil && tail.prev == r.lastListener {
		return // already in position
	}

	// Unlink tail.
	if tail.prev != nil {
		tail.prev.next = nil
	}
	r.last = tail.prev
	if r.last == nil {
		r.root = nil
	}

	// Reinsert right after lastListener (or at root if there are none).
	if r.lastListener == nil {
		tail.prev = nil
		tail.next = r.root
		if r.root != nil {
			r.root.prev = tail
		}
		r.root = tail
	} else {
		tail.prev = r.lastListener
		tail.next = r.lastListener.next
		if r.lastListener.next != nil {
			r.lastListener.next.prev = tail
		}
		r.lastListener.next = tail
	}
	if tail.next == nil {
		r.last = tail
	}
}

// ShutdownAll iterates until the registry is empty, calling shutdown(sock)
// on each via shutdownFn. No new enqueues may occur while this runs.
func (r *Registry) ShutdownAll(shutdownFn func(*socket.Socket)) {
	for r.root != nil {
		sock := r.root.sock
		shutdownFn(sock)
	}
}
