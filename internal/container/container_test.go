package container

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAList_InsertInvariant(t *testing.T) {
	l := NewAList[string]()

	l.Insert(0, "a")
	assert.Equal(t, 1, l.Len())
	v, ok := l.Get(0)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	// Insert past the current end: length == max(old_length, index)+1.
	l.Insert(5, "f")
	assert.Equal(t, 6, l.Len())
	v, ok = l.Get(5)
	require.True(t, ok)
	assert.Equal(t, "f", v)

	// Holes read back as the zero value.
	v, ok = l.Get(3)
	require.True(t, ok)
	assert.Equal(t, "", v)

	// Inserting at an index within the current length never shrinks it.
	l.Insert(2, "c")
	assert.Equal(t, 6, l.Len())
	v, ok = l.Get(2)
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestAList_Delete(t *testing.T) {
	l := NewAList[int]()
	l.Insert(0, 10)
	l.Insert(1, 20)
	l.Delete(0)
	v, ok := l.Get(0)
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 2, l.Len())
}

func TestArray_AppendRemove(t *testing.T) {
	a := NewArray[int](0)
	a.Append(1)
	a.Append(2)
	a.Append(3)
	require.Equal(t, 3, a.Len())
	a.RemoveAt(1)
	assert.Equal(t, []int{1, 3}, a.Slice())
}

func TestHash_Basic(t *testing.T) {
	h := NewHash[int]()
	h.Set("a", 1)
	h.Set("b", 2)
	v, ok := h.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, h.Len())
	h.Delete("a")
	_, ok = h.Get("a")
	assert.False(t, ok)
}

func TestVector_Prune(t *testing.T) {
	v := NewVector()
	now := time.Now()
	v.Push(now.Add(-5 * time.Second))
	v.Push(now.Add(-1 * time.Second))
	v.Push(now)
	remaining := v.Prune(now.Add(-4 * time.Second))
	assert.Equal(t, 2, remaining)
	assert.Equal(t, 2, v.Len())
}
