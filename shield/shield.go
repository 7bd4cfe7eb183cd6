// Package shield holds the HTTP middleware placed in front of the API:
// security headers, HEAD handling and per-client rate limiting.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(shield.Config{RateLimit: rl}) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// Config selects the middleware returned by Stack.
type Config struct {
	Headers   HeaderConfig // zero value uses DefaultHeaders
	RateLimit RateLimitConfig
	// Exclude lists path prefixes that bypass rate limiting.
	Exclude   []string
}

// Stack returns HeadToGet, SecurityHeaders and, when enabled, the rate
// limiter, in that order. The limiter is returned too so the caller can
// run its GC loop.
func Stack(cfg Config) ([]func(http.Handler) http.Handler, *RateLimiter) {
	if cfg.Headers == (HeaderConfig{}) {
		cfg.Headers = DefaultHeaders()
	}
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(cfg.Headers),
	}
	if !cfg.RateLimit.Enabled() {
		return stack, nil
	}
	rl := NewRateLimiter(cfg.RateLimit, cfg.Exclude...)
	return append(stack, rl.Middleware), rl
}

// HeadToGet serves HEAD through the GET routes. net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
