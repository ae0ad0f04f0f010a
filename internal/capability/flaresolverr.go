package capability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	sessionTTL         = 10 * time.Minute
	sessionMaxRequests = 100
)

type flareSession struct {
	id           string
	createdAt    time.Time
	requestCount int
}

func (s *flareSession) needsRefresh() bool {
	return time.Since(s.createdAt) >= sessionTTL || s.requestCount >= sessionMaxRequests
}

// FlareSolverr routes requests through an external anti-bot solver,
// maintaining one global session with a TTL and max-request count.
// Ported from
// original_source/scrapers/scraper_core/src/plugins/common/flaresolverr.rs.
type FlareSolverr struct {
	url      string
	client   *http.Client
	fallback *HTTP

	mu      sync.RWMutex
	session *flareSession
}

// NewFlareSolverr builds a solver client. An empty url means "no
// solver configured"; Get then silently falls back to plain HTTP.
func NewFlareSolverr(solverURL string, fallback *HTTP) *FlareSolverr {
	if solverURL != "" && !strings.HasSuffix(solverURL, "/v1") {
		solverURL = strings.TrimRight(solverURL, "/") + "/v1"
	}
	return &FlareSolverr{
		url:      solverURL,
		client:   &http.Client{Timeout: 65 * time.Second},
		fallback: fallback,
	}
}

func (f *FlareSolverr) usingFlareSolverr() bool { return f.url != "" }

func (f *FlareSolverr) postJSON(payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *FlareSolverr) createSession() (*flareSession, error) {
	id := uuid.NewString()
	if _, err := f.postJSON(map[string]any{"cmd": "sessions.create", "session": id}); err != nil {
		return nil, err
	}
	return &flareSession{id: id, createdAt: time.Now()}, nil
}

func (f *FlareSolverr) destroySession(id string) {
	_, _ = f.postJSON(map[string]any{"cmd": "sessions.destroy", "session": id})
}

func (f *FlareSolverr) getOrRefreshSession() (*flareSession, error) {
	f.mu.RLock()
	cur := f.session
	f.mu.RUnlock()

	if cur != nil && !cur.needsRefresh() {
		return cur, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil && !f.session.needsRefresh() {
		return f.session, nil
	}
	if f.session != nil {
		f.destroySession(f.session.id)
	}
	fresh, err := f.createSession()
	if err != nil {
		return nil, err
	}
	f.session = fresh
	return fresh, nil
}

// Get implements flaresolverr.get(url, session?) -> Response. If no
// solver URL is configured it falls back to plain HTTP, and it falls
// back the same way on any solver-side failure.
func (f *FlareSolverr) Get(url string) (*Response, bool) {
	if !f.usingFlareSolverr() {
		return f.fallback.Get(url, nil)
	}

	session, err := f.getOrRefreshSession()
	if err != nil {
		return f.fallback.Get(url, nil)
	}

	f.mu.Lock()
	if f.session == session {
		f.session.requestCount++
	}
	f.mu.Unlock()

	result, err := f.postJSON(map[string]any{
		"cmd":        "request.get",
		"url":        url,
		"maxTimeout": 60000,
		"session":    session.id,
	})
	if err != nil {
		return f.fallback.Get(url, nil)
	}

	solution, _ := result["solution"].(map[string]any)
	if solution == nil {
		return f.fallback.Get(url, nil)
	}

	body, ok := extractSolverBody(solution)
	if !ok {
		return f.fallback.Get(url, nil)
	}

	status := 200
	if s, ok := solution["status"].(float64); ok {
		status = int(s)
	}
	var headers [][2]string
	if hs, ok := solution["headers"].(map[string]any); ok {
		for k, v := range hs {
			if sv, ok := v.(string); ok {
				headers = append(headers, [2]string{k, sv})
			}
		}
	}

	return &Response{Status: status, Headers: headers, Body: body}, true
}

// extractSolverBody tries the fallback chain of JSON paths different
// FlareSolverr versions nest the page body under: solution.response.body,
// solution.response (as a plain string), solution.response.text.
// See SPEC_FULL.md Part D.1.
func extractSolverBody(solution map[string]any) (string, bool) {
	response, hasResponse := solution["response"]
	if !hasResponse {
		return "", false
	}

	if s, ok := response.(string); ok {
		return s, true
	}

	respMap, ok := response.(map[string]any)
	if !ok {
		return "", false
	}
	if body, ok := respMap["body"].(string); ok {
		return body, true
	}
	if text, ok := respMap["text"].(string); ok {
		return text, true
	}
	return "", false
}
