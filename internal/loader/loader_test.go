package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/serveez-go/serveez/internal/server"
)

func TestLoad_MissingFileFails(t *testing.T) {
	l := New(server.NewRegistry())
	_, err := l.Load("/nonexistent/does-not-exist.so")
	assert.Error(t, err)
}

func TestRelease_UnknownTypeFails(t *testing.T) {
	l := New(server.NewRegistry())
	err := l.Release("never-loaded")
	assert.Error(t, err)
}

func TestLoaded_EmptyInitially(t *testing.T) {
	l := New(server.NewRegistry())
	assert.Empty(t, l.Loaded())
}
