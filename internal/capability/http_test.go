package capability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGetReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page", r.URL.Path)
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{})
	resp, ok := h.Get(srv.URL+"/page", nil)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "hello", resp.Body)
	assert.Equal(t, "yes", resp.HeaderValue("x-test"))
}

func TestHTTPGetSendsCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{})
	_, ok := h.Get(srv.URL, map[string]string{"Authorization": "token123"})
	require.True(t, ok)
}

func TestHTTPPostSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{})
	resp, ok := h.Post(srv.URL, "payload", nil)
	require.True(t, ok)
	assert.Equal(t, http.StatusCreated, resp.Status)
}

func TestHTTPGetTransportFailureReturnsFalse(t *testing.T) {
	h := NewHTTP(HTTPConfig{})
	_, ok := h.Get("http://127.0.0.1:0/unreachable", nil)
	assert.False(t, ok)
}

func TestHTTPGetPropagatesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{})
	resp, ok := h.Get(srv.URL, nil)
	require.True(t, ok, "an HTTP error status is still a successful transport round-trip")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}
