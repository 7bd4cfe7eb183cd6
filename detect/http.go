package detect

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/deekay/horosafe"
)

// HTTPInspector fetches the page with a single GET and scans the served
// HTML. A 404 status counts as an error page even without a marker.
// Pages that only render their error state client-side need the
// BrowserInspector.
type HTTPInspector struct {
	client   *http.Client
	ua       string
	markers  []Marker
	validate func(string) error
	maxBytes int64
	logger   *slog.Logger
}

// HTTPOption configures an HTTPInspector.
type HTTPOption func(*HTTPInspector)

// WithClient sets a custom HTTP client. A nil CheckRedirect is replaced
// with one that validates every hop.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTPInspector) { h.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTPInspector) { h.ua = ua }
}

// WithMarkers replaces DefaultMarkers.
func WithMarkers(m []Marker) HTTPOption {
	return func(h *HTTPInspector) { h.markers = m }
}

// WithURLValidator sets the pre-request URL check.
// Default: horosafe.ValidateURL.
func WithURLValidator(fn func(string) error) HTTPOption {
	return func(h *HTTPInspector) { h.validate = fn }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTPInspector) { h.logger = l }
}

// maxRedirects caps the hops followed per inspection.
const maxRedirects = 5

// NewHTTPInspector creates an HTTPInspector with a 30s timeout. Redirects are
// followed up to maxRedirects hops and each hop goes through the URL
// validator.
func NewHTTPInspector(opts ...HTTPOption) *HTTPInspector {
	h := &HTTPInspector{
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       "Mozilla/5.0 (compatible; DeeKay/1.0)",
		markers:  DefaultMarkers,
		validate: horosafe.ValidateURL,
		maxBytes: horosafe.MaxPageBody,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.client.CheckRedirect == nil {
		c := *h.client
		c.CheckRedirect = h.checkRedirect
		h.client = &c
	}
	return h
}

func (h *HTTPInspector) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("too many redirects (%d)", len(via))
	}
	if err := h.validate(req.URL.String()); err != nil {
		return fmt.Errorf("redirect blocked: %w", err)
	}
	return nil
}

// Inspect GETs pageURL. The returned PageURL is the final address after
// redirects, since that is the address the index would know.
func (h *HTTPInspector) Inspect(ctx context.Context, pageURL string) (Signal, error) {
	if err := h.validate(pageURL); err != nil {
		return Signal{}, fmt.Errorf("detect: URL blocked: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Signal{}, fmt.Errorf("detect: new request: %w", err)
	}
	req.Header.Set("User-Agent", h.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := h.client.Do(req)
	if err != nil {
		return Signal{}, fmt.Errorf("detect: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, h.maxBytes)
	if err != nil {
		return Signal{}, fmt.Errorf("detect: read body: %w", err)
	}

	marked, err := HasMarker(bytes.NewReader(body), h.markers)
	if err != nil {
		return Signal{}, err
	}

	sig := Signal{
		PageURL:     resp.Request.URL.String(),
		IsErrorPage: marked || resp.StatusCode == http.StatusNotFound,
		Status:      resp.StatusCode,
		Via:         "http",
	}
	h.logger.DebugContext(ctx, "detect: inspected",
		"url", pageURL, "final_url", sig.PageURL, "status", resp.StatusCode,
		"marker", marked, "error_page", sig.IsErrorPage)
	return sig, nil
}
