package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundaryCheckRequest_MultiByte(t *testing.T) {
	s := Alloc(nil)
	s.Boundary = []byte("\r\n")
	var frames []string
	s.CB.HandleRequest = func(_ *Socket, frame []byte) error {
		frames = append(frames, string(frame))
		return nil
	}

	require.True(t, s.In.Append([]byte("ab\r\ncd\r\ne")))
	require.NoError(t, BoundaryCheckRequest(s))

	assert.Equal(t, []string{"ab\r\n", "cd\r\n"}, frames)
	assert.Equal(t, "e", string(s.In.Bytes()))
}

func TestBoundaryCheckRequest_SingleByte(t *testing.T) {
	s := Alloc(nil)
	s.Boundary = []byte("\n")
	var frames []string
	s.CB.HandleRequest = func(_ *Socket, frame []byte) error {
		frames = append(frames, string(frame))
		return nil
	}

	require.True(t, s.In.Append([]byte("one\ntwo\nthr")))
	require.NoError(t, BoundaryCheckRequest(s))

	assert.Equal(t, []string{"one\n", "two\n"}, frames)
	assert.Equal(t, "thr", string(s.In.Bytes()))
}
