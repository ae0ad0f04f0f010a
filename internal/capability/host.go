package capability

import "time"

// HostConfig bundles the tunables for building a Host.
type HostConfig struct {
	UserAgent      string
	Timeout        time.Duration
	Proxy          string
	FlareSolverURL string
	WebDriverURL   string
	BrowserTimeout time.Duration
	PageTimeout    time.Duration
}

// Host is the full capability surface exposed to plugins: HTTP,
// cloudflare detection, the FlareSolverr anti-bot bridge, HTML
// parsing, and headless browsing. One Host is shared process-wide;
// plugin calls never see anything but this interface.
type Host struct {
	HTTP         *HTTP
	FlareSolverr *FlareSolverr
	Headless     HeadlessBackend
}

// NewHost builds a Host. Headless prefers a real WebDriver connection
// when WebDriverURL is set, falling back to the HTTP+HTML backend
// otherwise (or if the WebDriver launch fails).
func NewHost(cfg HostConfig) *Host {
	httpClient := NewHTTP(HTTPConfig{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout, Proxy: cfg.Proxy})
	flare := NewFlareSolverr(cfg.FlareSolverURL, httpClient)

	var headless HeadlessBackend
	if cfg.WebDriverURL != "" {
		backend, err := NewWebDriverBackend(cfg.WebDriverURL, cfg.UserAgent, cfg.BrowserTimeout, cfg.PageTimeout)
		if err == nil {
			headless = backend
		}
	}
	if headless == nil {
		headless = NewFallbackBackend(httpClient)
	}

	return &Host{HTTP: httpClient, FlareSolverr: flare, Headless: headless}
}

// Close releases resources held by the headless backend (e.g. the
// browser process for the WebDriver backend).
func (h *Host) Close() error {
	if h.Headless != nil {
		return h.Headless.Close()
	}
	return nil
}
