package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serveez-go/serveez/internal/socket"
)

func newTestSocket() *socket.Socket {
	return socket.Alloc(nil)
}

func TestRegistry_EnqueueFindDequeue(t *testing.T) {
	r := New()
	s := newTestSocket()

	require.NoError(t, r.Enqueue(s))
	assert.True(t, s.Enqueued())

	found, ok := r.Find(s.ID, int(s.Version))
	require.True(t, ok)
	assert.Same(t, s, found)

	require.NoError(t, r.Dequeue(s))
	assert.False(t, s.Enqueued())
	_, ok = r.Find(s.ID, -1)
	assert.False(t, ok)
}

func TestRegistry_DoubleEnqueueFails(t *testing.T) {
	r := New()
	s := newTestSocket()
	require.NoError(t, r.Enqueue(s))
	assert.Error(t, r.Enqueue(s))
}

func TestRegistry_DoubleDequeueFails(t *testing.T) {
	r := New()
	s := newTestSocket()
	require.NoError(t, r.Enqueue(s))
	require.NoError(t, r.Dequeue(s))
	assert.Error(t, r.Dequeue(s))
}

func TestRegistry_ListenersStayAtHead(t *testing.T) {
	r := New()
	l1 := newTestSocket()
	l1.Flags |= socket.FlagListening
	c1 := newTestSocket()
	l2 := newTestSocket()
	l2.Flags |= socket.FlagListening
	c2 := newTestSocket()

	require.NoError(t, r.Enqueue(l1))
	require.NoError(t, r.Enqueue(c1))
	require.NoError(t, r.Enqueue(l2))
	require.NoError(t, r.Enqueue(c2))

	var order []*socket.Socket
	r.Each(func(s *socket.Socket) bool {
		order = append(order, s)
		return true
	})
	require.Len(t, order, 4)
	assert.Same(t, l1, order[0])
	assert.Same(t, l2, order[1])
	assert.ElementsMatch(t, []*socket.Socket{c1, c2}, order[2:])
}

func TestRegistry_Rechain_RoundRobin(t *testing.T) {
	r := New()
	l := newTestSocket()
	l.Flags |= socket.FlagListening
	c1, c2, c3 := newTestSocket(), newTestSocket(), newTestSocket()
	require.NoError(t, r.Enqueue(l))
	require.NoError(t, r.Enqueue(c1))
	require.NoError(t, r.Enqueue(c2))
	require.NoError(t, r.Enqueue(c3))

	order := func() []*socket.Socket {
		var out []*socket.Socket
		r.Each(func(s *socket.Socket) bool { out = append(out, s); return true })
		return out
	}

	before := order()
	require.Equal(t, []*socket.Socket{l, c1, c2, c3}, before)

	r.Rechain()
	after := order()
	assert.Equal(t, []*socket.Socket{l, c3, c1, c2}, after, "tail moves to just after the listener")
}

func TestRegistry_ShutdownAll(t *testing.T) {
	r := New()
	s1, s2 := newTestSocket(), newTestSocket()
	require.NoError(t, r.Enqueue(s1))
	require.NoError(t, r.Enqueue(s2))

	var shut []*socket.Socket
	r.ShutdownAll(func(s *socket.Socket) {
		shut = append(shut, s)
		_ = r.Dequeue(s)
	})
	assert.Len(t, shut, 2)
	assert.Equal(t, 0, r.Len())
}
