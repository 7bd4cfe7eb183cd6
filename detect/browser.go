package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures a BrowserInspector.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// Stealth applies go-rod/stealth evasions to every tab.
	Stealth bool

	// NavTimeout bounds navigation plus settle time. Default: 30s.
	NavTimeout time.Duration

	// Settle is how long to wait after load for the client-side app to
	// render its error state. Default: 1.5s.
	Settle time.Duration

	// ResourceBlocking lists resource types not worth downloading to decide
	// on a 404 (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Markers []Marker
	Logger  *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 1500 * time.Millisecond
	}
	if c.Markers == nil {
		c.Markers = DefaultMarkers
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserInspector checks the DOM after client-side rendering, where the
// site inserts its error marker. Call Start before Inspect and Close when
// done.
type BrowserInspector struct {
	cfg     BrowserConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserInspector creates an inspector; Chrome is not started yet.
func NewBrowserInspector(cfg BrowserConfig) *BrowserInspector {
	cfg.defaults()
	return &BrowserInspector{cfg: cfg}
}

// Start launches Chrome or connects to RemoteURL.
func (b *BrowserInspector) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	controlURL := b.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Leakless(true)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("detect: launch chrome: %w", err)
		}
		b.lnch = l
		controlURL = u
	}

	br := rod.New().ControlURL(controlURL).Context(ctx)
	if err := br.Connect(); err != nil {
		if b.lnch != nil {
			b.lnch.Kill()
			b.lnch = nil
		}
		return fmt.Errorf("detect: connect chrome: %w", err)
	}
	b.browser = br
	b.cfg.Logger.Info("detect: browser ready", "remote", b.cfg.RemoteURL != "")
	return nil
}

// Close shuts Chrome down.
func (b *BrowserInspector) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Kill()
		b.lnch = nil
	}
	return err
}

// Inspect opens pageURL in a fresh tab and looks for the error markers in
// the rendered DOM. Tabs are used one at a time.
func (b *BrowserInspector) Inspect(ctx context.Context, pageURL string) (Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return Signal{}, fmt.Errorf("detect: browser not started")
	}

	page, stop, err := b.openTab()
	if err != nil {
		return Signal{}, err
	}
	defer page.Close()
	defer stop()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(pageURL); err != nil {
		return Signal{}, fmt.Errorf("detect: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		b.cfg.Logger.Warn("detect: wait load", "url", pageURL, "error", err)
	}
	select {
	case <-navCtx.Done():
		return Signal{}, fmt.Errorf("detect: settle %s: %w", pageURL, navCtx.Err())
	case <-time.After(b.cfg.Settle):
	}

	res, err := p.Eval(`(sel) => document.querySelectorAll(sel).length`, markerSelector(b.cfg.Markers))
	if err != nil {
		return Signal{}, fmt.Errorf("detect: query markers: %w", err)
	}

	finalURL := pageURL
	if info, err := p.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	sig := Signal{
		PageURL:     finalURL,
		IsErrorPage: res.Value.Int() > 0,
		Via:         "browser",
	}
	b.cfg.Logger.Debug("detect: inspected",
		"url", pageURL, "final_url", finalURL, "error_page", sig.IsErrorPage)
	return sig, nil
}

// openTab returns a new tab and a func releasing its request router.
func (b *BrowserInspector) openTab() (*rod.Page, func(), error) {
	var page *rod.Page
	var err error
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("detect: create tab: %w", err)
	}
	stop := func() {}
	if len(b.cfg.ResourceBlocking) > 0 {
		router := blockResources(page, b.cfg.ResourceBlocking)
		stop = func() { _ = router.Stop() }
	}
	return page, stop, nil
}

// markerSelector joins all markers into one selector list.
func markerSelector(markers []Marker) string {
	sels := make([]string, len(markers))
	for i, m := range markers {
		sels[i] = m.Selector()
	}
	return strings.Join(sels, ", ")
}

// blockResources fails requests for the listed resource types.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	default:
		return blockSet[lower]
	}
}
