// Package detect decides whether a page is a "page not found" error page
// and reports the address the page was served from. It is the trigger for
// a resolution pass.
//
// magic.wizards.com serves its 404 page from a client-rendered app: the
// response is often 200 and the only reliable signal is an element carrying
// data-fetch-key="Error404:0" in the rendered DOM.
package detect

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Marker identifies an error page by an attribute value on any element.
type Marker struct {
	Attr  string `yaml:"attr" json:"attr"`
	Value string `yaml:"value" json:"value"`
}

// Selector returns the CSS attribute selector for m.
func (m Marker) Selector() string {
	return fmt.Sprintf(`[%s=%q]`, m.Attr, m.Value)
}

// DefaultMarkers holds the wizards.com error marker.
var DefaultMarkers = []Marker{{Attr: "data-fetch-key", Value: "Error404:0"}}

// Signal is what the trigger hands to the core: whether the page is an
// error page, and its address.
type Signal struct {
	PageURL     string `json:"page_url"`
	IsErrorPage bool   `json:"is_error_page"`
	// Status is the HTTP status when known (0 for browser inspections).
	Status int `json:"status,omitempty"`
	// Via names the inspector that produced the signal.
	Via string `json:"via"`
}

// Inspector produces a Signal for a page address.
type Inspector interface {
	Inspect(ctx context.Context, pageURL string) (Signal, error)
}

// HasMarker parses an HTML document and reports whether any element carries
// one of markers. nil markers means DefaultMarkers.
func HasMarker(r io.Reader, markers []Marker) (bool, error) {
	if markers == nil {
		markers = DefaultMarkers
	}
	doc, err := html.Parse(r)
	if err != nil {
		return false, fmt.Errorf("detect: parse html: %w", err)
	}
	return findMarker(doc, markers), nil
}

// IsErrorPage is HasMarker over a byte slice with DefaultMarkers.
func IsErrorPage(body []byte) bool {
	ok, err := HasMarker(strings.NewReader(string(body)), nil)
	return err == nil && ok
}

func findMarker(n *html.Node, markers []Marker) bool {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			for _, m := range markers {
				if a.Namespace == "" && strings.EqualFold(a.Key, m.Attr) && a.Val == m.Value {
					return true
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if findMarker(c, markers) {
			return true
		}
	}
	return false
}
