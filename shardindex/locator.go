package shardindex

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/deekay/horosafe"
)

// Locator turns a path relative to the index root into an address a
// Transport can fetch.
type Locator interface {
	Locate(relativePath string) (string, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(relativePath string) (string, error)

// Locate calls f.
func (f LocatorFunc) Locate(relativePath string) (string, error) { return f(relativePath) }

// ShardPath is the resource name of the shard for prefix.
func ShardPath(prefix string) string {
	return prefix + ".json"
}

// BaseLocator resolves paths under Base, which is either an http(s) URL or a
// local directory.
type BaseLocator struct {
	Base string
}

// NewBaseLocator returns a locator rooted at base.
func NewBaseLocator(base string) *BaseLocator {
	return &BaseLocator{Base: base}
}

// IsRemote reports whether the base is an http(s) URL.
func (l *BaseLocator) IsRemote() bool {
	return isHTTPBase(l.Base)
}

// Locate joins relativePath onto the base. Paths escaping the base are
// rejected.
func (l *BaseLocator) Locate(relativePath string) (string, error) {
	if l.Base == "" {
		return "", fmt.Errorf("shardindex: empty index base")
	}
	if strings.Contains(relativePath, "..") {
		return "", horosafe.ErrPathTraversal
	}
	if l.IsRemote() {
		u, err := url.Parse(l.Base)
		if err != nil {
			return "", fmt.Errorf("shardindex: index base: %w", err)
		}
		return u.JoinPath(relativePath).String(), nil
	}
	return horosafe.SafePath(l.Base, relativePath)
}

func isHTTPBase(base string) bool {
	lower := strings.ToLower(base)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
