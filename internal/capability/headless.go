package capability

import (
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// HeadlessElement is a DOM node found by a headless backend.
type HeadlessElement interface {
	Text() (string, error)
	Attr(name string) (string, bool)
	Click() error
}

// HeadlessBackend implements headless.goto/find/find_all/close.
// Backed by WebDriver when configured, otherwise a fallback that uses
// plain HTTP + HTML parsing where Click is a no-op and find operates
// on the last fetched HTML. Ported from
// original_source/scrapers/scraper_core/src/plugins/common/headless/fallback.rs.
type HeadlessBackend interface {
	Goto(url string) error
	Find(selector string) (HeadlessElement, error)
	FindAll(selector string) ([]HeadlessElement, error)
	Close() error
}

// ---- WebDriver backend (go-rod) ----

// WebDriverBackend drives a real headless Chrome instance via rod,
// grounded on the teacher's internal/fetcher/browser.go launch/connect/
// navigate lifecycle.
type WebDriverBackend struct {
	browser     *rod.Browser
	page        *rod.Page
	timeout     time.Duration
	pageTimeout time.Duration
	userAgent   string
}

// NewWebDriverBackend launches (or connects to, if controlURL is set)
// a headless Chrome instance.
func NewWebDriverBackend(controlURL, userAgent string, timeout, pageTimeout time.Duration) (*WebDriverBackend, error) {
	u := controlURL
	if u == "" {
		launched, err := launcher.New().
			Headless(true).
			Set("no-sandbox").
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Launch()
		if err != nil {
			return nil, err
		}
		u = launched
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, err
	}

	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if pageTimeout == 0 {
		pageTimeout = 15 * time.Second
	}

	return &WebDriverBackend{browser: browser, timeout: timeout, pageTimeout: pageTimeout, userAgent: userAgent}, nil
}

func (b *WebDriverBackend) Goto(url string) error {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return err
	}
	page = page.Timeout(b.timeout)
	if b.userAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent})
	}
	if err := page.Navigate(url); err != nil {
		return err
	}
	_ = page.WaitStable(b.pageTimeout) // best effort; partial render still usable
	if b.page != nil {
		_ = b.page.Close()
	}
	b.page = page
	return nil
}

type rodElement struct{ el *rod.Element }

func (e *rodElement) Text() (string, error)  { return e.el.Text() }
func (e *rodElement) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}
func (e *rodElement) Click() error { return e.el.Click(proto.InputMouseButtonLeft, 1) }

func (b *WebDriverBackend) Find(selector string) (HeadlessElement, error) {
	if b.page == nil {
		return nil, nil
	}
	el, err := b.page.Element(selector)
	if err != nil {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

func (b *WebDriverBackend) FindAll(selector string) ([]HeadlessElement, error) {
	if b.page == nil {
		return nil, nil
	}
	els, err := b.page.Elements(selector)
	if err != nil {
		return nil, nil
	}
	out := make([]HeadlessElement, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (b *WebDriverBackend) Close() error {
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}

// ---- Fallback backend (HTTP + HTML) ----

// fallbackElement wraps a goquery selection; Click is a no-op.
type fallbackElement struct{ inner *Element }

func (e *fallbackElement) Text() (string, error)      { return e.inner.Text(), nil }
func (e *fallbackElement) Attr(name string) (string, bool) { return e.inner.Attr(name) }
func (e *fallbackElement) Click() error               { return nil }

// FallbackBackend is the non-WebDriver headless backend: goto fetches
// via plain HTTP and caches the body; find/find_all query the cached
// HTML; close is a no-op.
type FallbackBackend struct {
	http *HTTP

	mu       sync.Mutex
	lastHTML string
}

func NewFallbackBackend(http *HTTP) *FallbackBackend {
	return &FallbackBackend{http: http}
}

func (b *FallbackBackend) Goto(url string) error {
	resp, ok := b.http.Get(url, nil)
	if !ok {
		return nil
	}
	b.mu.Lock()
	b.lastHTML = resp.Body
	b.mu.Unlock()
	return nil
}

func (b *FallbackBackend) Find(selector string) (HeadlessElement, error) {
	b.mu.Lock()
	html := b.lastHTML
	b.mu.Unlock()

	el, err := FindOne(html, selector)
	if err != nil || el == nil {
		return nil, nil
	}
	return &fallbackElement{inner: el}, nil
}

func (b *FallbackBackend) FindAll(selector string) ([]HeadlessElement, error) {
	b.mu.Lock()
	html := b.lastHTML
	b.mu.Unlock()

	elems, err := Find(html, selector)
	if err != nil {
		return nil, nil
	}
	out := make([]HeadlessElement, 0, len(elems))
	for _, el := range elems {
		out = append(out, &fallbackElement{inner: el})
	}
	return out, nil
}

func (b *FallbackBackend) Close() error { return nil }
