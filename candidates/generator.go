// Package candidates produces the ordered list of URLs a lost article may
// have lived at, given the address of the page that now returns an error.
//
// Order is decreasing confidence: the literal address, then site-specific
// rewrites, then scheme variants. Duplicates are dropped, first seen wins.
package candidates

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rule rewrites addresses matching Pattern into Replace. Replace uses
// regexp expansion syntax ($1, ${name}).
type Rule struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Replace string `yaml:"replace" json:"replace"`
}

// DefaultRules covers the magic.wizards.com migration from /en/articles/archive
// to /en/news. The index holds the archive-era addresses.
var DefaultRules = []Rule{
	{
		Name:    "wizards-news-to-archive",
		Pattern: `^https://magic\.wizards\.com/en/news/(.*)$`,
		Replace: "https://magic.wizards.com/en/articles/archive/$1",
	},
}

type compiledRule struct {
	name    string
	re      *regexp.Regexp
	replace string
}

// Generator expands a page address into candidates. It holds no state
// between calls; it is safe to share.
type Generator struct {
	rules          []compiledRule
	schemeVariants bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithoutSchemeVariants disables the http variants of https candidates.
func WithoutSchemeVariants() Option {
	return func(g *Generator) { g.schemeVariants = false }
}

// New compiles rules into a Generator. A nil rules slice means DefaultRules;
// an empty non-nil slice disables rewrites.
func New(rules []Rule, opts ...Option) (*Generator, error) {
	if rules == nil {
		rules = DefaultRules
	}
	g := &Generator{schemeVariants: true}
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("candidates: rule %q: %w", r.Name, err)
		}
		if r.Replace == "" {
			return nil, fmt.Errorf("candidates: rule %q: empty replacement", r.Name)
		}
		g.rules = append(g.rules, compiledRule{name: r.Name, re: re, replace: r.Replace})
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// MustNew is New for package-level defaults; it panics on a bad rule.
func MustNew(rules []Rule, opts ...Option) *Generator {
	g, err := New(rules, opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// Generate returns the candidates for currentURL. The first element is
// always currentURL itself, even when it is not a valid absolute URL.
// Rewrites that do not yield an absolute URL are discarded.
func (g *Generator) Generate(currentURL string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	add := func(s string) bool {
		if _, ok := seen[s]; ok {
			return false
		}
		seen[s] = struct{}{}
		out = append(out, s)
		return true
	}

	add(currentURL)

	var rewrites []string
	for _, r := range g.rules {
		m := r.re.FindStringSubmatchIndex(currentURL)
		if m == nil {
			continue
		}
		rewritten := string(r.re.ExpandString(nil, r.replace, currentURL, m))
		if !IsAbsolute(rewritten) {
			continue
		}
		if add(rewritten) {
			rewrites = append(rewrites, rewritten)
		}
	}

	if g.schemeVariants {
		// Rewrites first: the index was built from archive-era addresses,
		// so their variants are more likely hits than the literal one's.
		for _, c := range append(rewrites, currentURL) {
			if v, ok := httpVariant(c); ok {
				add(v)
			}
		}
	}
	return out
}

// IsAbsolute reports whether s parses as a URL with scheme and host.
func IsAbsolute(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// httpVariant returns the http:// form of an https:// address. The rest of
// the text is kept byte for byte since the digest covers the exact string.
func httpVariant(s string) (string, bool) {
	const https = "https://"
	if len(s) < len(https) || !strings.EqualFold(s[:len(https)], https) {
		return "", false
	}
	if !IsAbsolute(s) {
		return "", false
	}
	return "http://" + s[len(https):], true
}
