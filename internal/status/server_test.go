package status

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serveez-go/serveez/internal/registry"
)

func performRequest(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_PanicsOnNilDependencies(t *testing.T) {
	assert.Panics(t, func() { New("127.0.0.1", 0, nil, nil, nil) })
}

func TestServer_Health(t *testing.T) {
	s := New("127.0.0.1", 0, NewCounters(), registry.New(), nil)
	w := performRequest(s.engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestServer_Stats(t *testing.T) {
	counters := NewCounters()
	counters.RecordAccept()
	counters.RecordBytesIn(100)

	s := New("127.0.0.1", 0, counters, registry.New(), nil)
	w := performRequest(s.engine, http.MethodGet, "/stats")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sockets_accepted")
	assert.Contains(t, w.Body.String(), "bytes_in")
}
