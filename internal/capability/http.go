// Package capability implements the host-side syscalls plugins may
// call (C1): HTTP, HTML DOM, anti-bot bypass, headless browsing, JSON.
// Plugins receive no filesystem, process, or raw-socket access; all
// network egress flows through this package.
package capability

import (
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Response is the result of http.get/http.post, matching spec.md
// §4.1's Response shape.
type Response struct {
	Status  int
	Headers [][2]string
	Body    string
}

// HeaderValue returns the first value for a header name, case-insensitive.
func (r *Response) HeaderValue(name string) string {
	for _, kv := range r.Headers {
		if strings.EqualFold(kv[0], name) {
			return kv[1]
		}
	}
	return ""
}

// HTTPConfig configures the per-call colly collector used by Get/Post.
type HTTPConfig struct {
	UserAgent string
	Timeout   time.Duration
	Proxy     string
}

// DefaultUserAgent matches original_source's CommonHttp default UA.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.36"

// HTTP implements the http.get/http.post capability. A fresh collector
// is cloned per call (the teacher's internal/fetcher/http.go pattern)
// so one call's callbacks never see another call's response. Clones
// share the base collector's visited-URL store, so revisits are
// allowed.
type HTTP struct {
	base *colly.Collector
}

// NewHTTP builds the shared base collector; individual calls Clone() it.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = cfg.UserAgent
	// Deliver 4xx/5xx responses to OnResponse instead of failing the
	// request, so callers see the status code.
	c.ParseHTTPErrorResponse = true
	c.AllowURLRevisit = true
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.Proxy != "" {
		_ = c.SetProxy(cfg.Proxy)
	}
	return &HTTP{base: c}
}

// Get implements http.get(url, headers?) -> Response | None. Transport
// errors return (nil, false): the host swallows them at the plugin
// boundary per spec.md §7, distinguishing HTTP error statuses from
// transport failures only via Response.Status.
func (h *HTTP) Get(url string, headers map[string]string) (*Response, bool) {
	return h.do("GET", url, "", headers)
}

// Post implements http.post(url, body, headers?) -> Response | None.
func (h *HTTP) Post(url, body string, headers map[string]string) (*Response, bool) {
	return h.do("POST", url, body, headers)
}

func (h *HTTP) do(method, url, body string, headers map[string]string) (*Response, bool) {
	c := h.base.Clone()

	resp := &Response{}
	var transportErr error
	got := false

	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		resp.Status = r.StatusCode
		resp.Body = string(r.Body)
		resp.Headers = make([][2]string, 0, len(*r.Headers))
		for k, vs := range *r.Headers {
			for _, v := range vs {
				resp.Headers = append(resp.Headers, [2]string{k, v})
			}
		}
		got = true
	})

	c.OnError(func(r *colly.Response, err error) {
		transportErr = err
		if r != nil {
			resp.Status = r.StatusCode
			got = true
		}
	})

	var err error
	switch method {
	case "POST":
		err = c.Request("POST", url, strings.NewReader(body), nil, nil)
	default:
		err = c.Visit(url)
	}
	if err != nil && !strings.Contains(err.Error(), "already visited") {
		return nil, false
	}
	c.Wait()

	if transportErr != nil && !got {
		return nil, false
	}
	if !got {
		return nil, false
	}
	return resp, true
}

// headerMapOf converts Response.Headers into an http.Header for callers
// that want stdlib-shaped access; header names are canonicalized by
// http.Header.Add.
func headerMapOf(r *Response) http.Header {
	h := make(http.Header, len(r.Headers))
	for _, kv := range r.Headers {
		h.Add(kv[0], kv[1])
	}
	return h
}
