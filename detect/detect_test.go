package detect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/deekay/horosafe"
)

const wizards404 = `<!DOCTYPE html>
<html><head><title>Magic: The Gathering</title></head>
<body>
<div id="__nuxt"><div class="page"><div data-fetch-key="Error404:0" class="error-page">
<h1>Page not found</h1></div></div></div>
</body></html>`

const wizardsArticle = `<!DOCTYPE html>
<html><head><title>Article</title></head>
<body><div data-fetch-key="Article:0"><h1>Feature</h1><p>text</p></div></body></html>`

func TestHasMarker(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"error page", wizards404, true},
		{"article", wizardsArticle, false},
		{"empty", ``, false},
		{"uppercase attribute", `<div DATA-FETCH-KEY="Error404:0"></div>`, true},
		{"value in text only", `<p>data-fetch-key="Error404:0"</p>`, false},
		{"other value", `<div data-fetch-key="Error500:0"></div>`, false},
	}
	for _, tt := range tests {
		got, err := HasMarker(strings.NewReader(tt.html), nil)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: HasMarker = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHasMarker_CustomMarkers(t *testing.T) {
	markers := []Marker{{Attr: "data-status", Value: "missing"}}
	got, err := HasMarker(strings.NewReader(`<main data-status="missing"></main>`), markers)
	if err != nil || !got {
		t.Fatalf("HasMarker = %v, %v", got, err)
	}
	if IsErrorPage([]byte(`<main data-status="missing"></main>`)) {
		t.Fatal("IsErrorPage must use the default marker only")
	}
}

func TestMarkerSelector(t *testing.T) {
	if got := DefaultMarkers[0].Selector(); got != `[data-fetch-key="Error404:0"]` {
		t.Errorf("Selector = %s", got)
	}
	got := markerSelector([]Marker{{"a", "1"}, {"b", "2"}})
	if got != `[a="1"], [b="2"]` {
		t.Errorf("markerSelector = %s", got)
	}
}

func newTestInspector() *HTTPInspector {
	return NewHTTPInspector(
		WithURLValidator(horosafe.AllowAll),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestHTTPInspector(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/en/news/gone", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wizards404))
	})
	mux.HandleFunc("/en/news/here", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wizardsArticle))
	})
	mux.HandleFunc("/plain404", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/en/news/gone", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	in := newTestInspector()
	tests := []struct {
		path      string
		wantError bool
		wantFinal string
	}{
		{"/en/news/gone", true, "/en/news/gone"},
		{"/en/news/here", false, "/en/news/here"},
		{"/plain404", true, "/plain404"},
		{"/moved", true, "/en/news/gone"},
	}
	for _, tt := range tests {
		sig, err := in.Inspect(context.Background(), srv.URL+tt.path)
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if sig.IsErrorPage != tt.wantError {
			t.Errorf("%s: IsErrorPage = %v, want %v", tt.path, sig.IsErrorPage, tt.wantError)
		}
		if sig.PageURL != srv.URL+tt.wantFinal {
			t.Errorf("%s: PageURL = %s", tt.path, sig.PageURL)
		}
		if sig.Via != "http" {
			t.Errorf("Via = %q", sig.Via)
		}
	}
}

func TestHTTPInspector_Blocked(t *testing.T) {
	in := NewHTTPInspector()
	if _, err := in.Inspect(context.Background(), "http://127.0.0.1/"); err == nil {
		t.Fatal("expected loopback URL to be blocked")
	}
}

func TestHTTPInspector_RedirectHopsValidated(t *testing.T) {
	var internalHits int
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		internalHits++
		http.NotFound(w, r)
	}))
	defer internal.Close()

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/metadata", http.StatusFound)
	}))
	defer front.Close()

	// Only the front server is allowed; the redirect target is not.
	var checked []string
	in := NewHTTPInspector(
		WithURLValidator(func(u string) error {
			checked = append(checked, u)
			if strings.HasPrefix(u, front.URL) {
				return nil
			}
			return errors.New("blocked")
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	if _, err := in.Inspect(context.Background(), front.URL+"/en/news/x"); err == nil {
		t.Fatal("expected redirect to a blocked host to fail")
	}
	if internalHits != 0 {
		t.Errorf("blocked host was hit %d times", internalHits)
	}
	if len(checked) != 2 {
		t.Errorf("validator calls = %v, want first URL and redirect target", checked)
	}
}

func TestHTTPInspector_RedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	if _, err := newTestInspector().Inspect(context.Background(), srv.URL+"/loop"); err == nil {
		t.Fatal("expected redirect loop to fail")
	}
}

func TestBrowserInspector_NotStarted(t *testing.T) {
	b := NewBrowserInspector(BrowserConfig{})
	if _, err := b.Inspect(context.Background(), "https://magic.wizards.com/en/news/x"); err == nil {
		t.Fatal("expected error before Start")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close on idle inspector: %v", err)
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true, "xhr": true}
	tests := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Stylesheet": false,
		"Media":      false,
		"XHR":        true,
		"Document":   false,
	}
	for typ, want := range tests {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q) = %v, want %v", typ, got, want)
		}
	}
}
