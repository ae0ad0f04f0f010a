package capability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlareSolverrNoURLFallsBackToPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("direct"))
	}))
	defer srv.Close()

	fs := NewFlareSolverr("", NewHTTP(HTTPConfig{}))
	resp, ok := fs.Get(srv.URL)
	require.True(t, ok)
	assert.Equal(t, "direct", resp.Body)
}

func TestFlareSolverrCreatesSessionAndSolves(t *testing.T) {
	var sessionsCreated, requestsMade int
	solver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		switch payload["cmd"] {
		case "sessions.create":
			sessionsCreated++
			json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		case "request.get":
			requestsMade++
			json.NewEncoder(w).Encode(map[string]any{
				"status": "ok",
				"solution": map[string]any{
					"status":   200.0,
					"response": "<html>solved</html>",
				},
			})
		}
	}))
	defer solver.Close()

	fs := NewFlareSolverr(solver.URL, NewHTTP(HTTPConfig{}))
	resp, ok := fs.Get("https://target.example/page")
	require.True(t, ok)
	assert.Equal(t, "<html>solved</html>", resp.Body)
	assert.Equal(t, 1, sessionsCreated)
	assert.Equal(t, 1, requestsMade)

	// second call within TTL/limit reuses the session
	_, ok = fs.Get("https://target.example/other")
	require.True(t, ok)
	assert.Equal(t, 1, sessionsCreated, "session must be reused, not recreated")
	assert.Equal(t, 2, requestsMade)
}

func TestFlareSolverrFallsBackOnSolverFailure(t *testing.T) {
	solver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer solver.Close()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fallback-body"))
	}))
	defer target.Close()

	fs := NewFlareSolverr(solver.URL, NewHTTP(HTTPConfig{}))
	resp, ok := fs.Get(target.URL)
	require.True(t, ok)
	assert.Equal(t, "fallback-body", resp.Body)
}

func TestExtractSolverBodyFallbackChain(t *testing.T) {
	body, ok := extractSolverBody(map[string]any{"response": "plain"})
	require.True(t, ok)
	assert.Equal(t, "plain", body)

	body, ok = extractSolverBody(map[string]any{"response": map[string]any{"body": "nested-body"}})
	require.True(t, ok)
	assert.Equal(t, "nested-body", body)

	body, ok = extractSolverBody(map[string]any{"response": map[string]any{"text": "nested-text"}})
	require.True(t, ok)
	assert.Equal(t, "nested-text", body)

	_, ok = extractSolverBody(map[string]any{})
	assert.False(t, ok)
}
