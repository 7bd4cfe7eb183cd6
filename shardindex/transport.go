package shardindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hazyhaar/deekay/horosafe"
)

// Transport retrieves raw shard content from an address produced by a
// Locator. Failures should be *FetchError.
type Transport interface {
	Fetch(ctx context.Context, address string) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, address string) ([]byte, error)

// Fetch calls f.
func (f TransportFunc) Fetch(ctx context.Context, address string) ([]byte, error) {
	return f(ctx, address)
}

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	Timeout   time.Duration // whole-request timeout. Default: 15s.
	MaxBytes  int64         // shard body cap. Default: horosafe.MaxShardBody.
	UserAgent string
	// URLValidator vets every address before the request.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxShardBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "deekay/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// HTTPTransport fetches shards with GET.
type HTTPTransport struct {
	client *http.Client
	cfg    HTTPConfig
}

// NewHTTPTransport builds an HTTPTransport. Redirects are followed up to 5
// hops and each hop is validated like the first address.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	cfg.defaults()
	validate := cfg.URLValidator
	return &HTTPTransport{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		cfg: cfg,
	}
}

// Fetch GETs address. Any status outside 2xx is a FetchError.
func (t *HTTPTransport) Fetch(ctx context.Context, address string) ([]byte, error) {
	if err := t.cfg.URLValidator(address); err != nil {
		return nil, &FetchError{Address: address, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, &FetchError{Address: address, Cause: err}
	}
	req.Header.Set("User-Agent", t.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &FetchError{Address: address, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Address: address,
			Status:  resp.StatusCode,
			Cause:   errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := horosafe.LimitedReadAll(resp.Body, t.cfg.MaxBytes)
	if err != nil {
		return nil, &FetchError{Address: address, Status: resp.StatusCode, Cause: err}
	}
	return body, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() {
	t.client.CloseIdleConnections()
}

// DirTransport reads shards from the local filesystem. Addresses are file
// paths as produced by a BaseLocator with a directory base.
type DirTransport struct {
	MaxBytes int64
}

// Fetch reads the file at address.
func (t DirTransport) Fetch(ctx context.Context, address string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Address: address, Cause: err}
	}
	limit := t.MaxBytes
	if limit <= 0 {
		limit = horosafe.MaxShardBody
	}
	f, err := os.Open(address)
	if err != nil {
		return nil, &FetchError{Address: address, Cause: err}
	}
	defer f.Close()

	data, err := horosafe.LimitedReadAll(f, limit)
	if err != nil {
		return nil, &FetchError{Address: address, Cause: err}
	}
	return data, nil
}
