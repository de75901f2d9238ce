package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendReduce(t *testing.T) {
	b := New(nil, 8)
	ok := b.Append([]byte("abcd"))
	require.True(t, ok)
	assert.Equal(t, 4, b.Fill())
	assert.Equal(t, 4, b.Free())

	ok = b.Append([]byte("12345"))
	assert.False(t, ok, "append beyond capacity must fail")
	assert.Equal(t, 4, b.Fill(), "failed append must not partially mutate fill")

	require.NoError(t, b.Reduce(2))
	assert.Equal(t, "cd", string(b.Bytes()))
	assert.Equal(t, 2, b.Fill())
}

func TestBuffer_ReduceOutOfRange(t *testing.T) {
	b := New(nil, 4)
	b.Append([]byte("ab"))
	assert.Error(t, b.Reduce(3))
}

func TestBuffer_Resize(t *testing.T) {
	b := New(nil, 4)
	b.Append([]byte("abcd"))
	b.Resize(8)
	assert.Equal(t, 8, b.Size())
	assert.Equal(t, "abcd", string(b.Bytes()))

	b.Resize(2)
	assert.Equal(t, 2, b.Size())
	assert.Equal(t, "ab", string(b.Bytes()), "excess tail must be discarded on shrink")
}

func TestBuffer_Invariant(t *testing.T) {
	b := New(nil, 16)
	for _, chunk := range []string{"he", "llo", " wor", "ld!!"} {
		b.Append([]byte(chunk))
		assert.GreaterOrEqual(t, b.Fill(), 0)
		assert.LessOrEqual(t, b.Fill(), b.Size())
	}
}
