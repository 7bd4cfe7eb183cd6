// Package notice renders the bar shown on top of a missing article page.
//
// A resolved pass yields a bar pointing at the archived copy. An unresolved
// pass yields a bar with a pre-filled issue-tracker link so the reader can
// report the page. Both fragments go through a bluemonday policy before
// they leave the package.
package notice

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/deekay/recovery"
)

// DefaultIssueBase is the "new issue" form of the project tracker.
const DefaultIssueBase = "https://github.com/maxmakesmagic/deekay/issues/new"

// BarStyle is the inline style of the injected bar.
const BarStyle = "width: 100%; height: 40px;background: #373737;color: #FFF;line-height: 40px; z-index: 100000; "

// Config holds the renderer settings.
type Config struct {
	Version   string // tool version quoted in reports
	IssueBase string // default DefaultIssueBase
}

// Renderer builds bar fragments.
type Renderer struct {
	version   string
	issueBase string
	tmpl      *template.Template
	policy    *bluemonday.Policy
}

var barTemplate = template.Must(template.New("bar").Parse(
	`<div class="deekay-bar" style="{{.Style}}">` +
		`{{if .Found}}DeeKay has found a working article link: <a href="{{.Href}}">let&#39;s go!</a>` +
		`{{else}}DeeKay could not find an archived copy of this article. <a href="{{.Href}}">report this</a>{{end}}` +
		`</div>`))

// New creates a Renderer.
func New(cfg Config) *Renderer {
	if cfg.IssueBase == "" {
		cfg.IssueBase = DefaultIssueBase
	}
	return &Renderer{
		version:   cfg.Version,
		issueBase: cfg.IssueBase,
		tmpl:      barTemplate,
		policy:    barPolicy(),
	}
}

func barPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowElements("div", "a")
	p.AllowAttrs("class", "style").OnElements("div")
	p.AllowAttrs("href").OnElements("a")
	return p
}

type barData struct {
	Found bool
	Href  string
	Style template.CSS
}

// Render returns the bar for a finished pass on pageURL.
func (r *Renderer) Render(pageURL string, res recovery.Result) (string, error) {
	data := barData{Found: res.Found, Style: template.CSS(BarStyle)}
	if res.Found {
		data.Href = res.ArchiveURL
	} else {
		data.Href = r.ReportURL(pageURL)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notice: render bar: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// ReportURL returns the issue-tracker link pre-filled with the page and
// the tool version.
func (r *Renderer) ReportURL(pageURL string) string {
	q := url.Values{}
	q.Set("title", "Missing article: "+pageURL)
	body := "DeeKay could not find an archived copy of:\n\n" + pageURL + "\n"
	if r.version != "" {
		body += "\nDeeKay version: " + r.version + "\n"
	}
	q.Set("body", body)
	return r.issueBase + "?" + q.Encode()
}
