// Package finder is the service facade: it checks a page, runs a recovery
// pass when the page is a covered error page, renders the bar and records
// the pass. The HTTP API and the MCP tools are thin layers over Service.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/deekay/candidates"
	"github.com/hazyhaar/deekay/detect"
	"github.com/hazyhaar/deekay/fingerprint"
	"github.com/hazyhaar/deekay/history"
	"github.com/hazyhaar/deekay/notice"
	"github.com/hazyhaar/deekay/recovery"
	"github.com/hazyhaar/deekay/shardindex"
)

// DefaultCoverage is the only URL prefix the published index covers.
const DefaultCoverage = "https://magic.wizards.com/"

var (
	ErrInvalidURL  = errors.New("finder: url must be absolute")
	ErrNoInspector = errors.New("finder: page inspection is not configured")
	ErrNoHistory   = errors.New("finder: pass history is not configured")
)

// Config wires a Service. Orchestrator is required.
type Config struct {
	Orchestrator *recovery.Orchestrator
	Inspector    detect.Inspector // nil disables Check
	Notice       *notice.Renderer // nil uses notice.New with defaults
	History      *history.Log     // nil disables the pass log
	Coverage     []string         // nil = []string{DefaultCoverage}
	Logger       *slog.Logger
}

// Service runs checks and passes.
type Service struct {
	orch      *recovery.Orchestrator
	inspector detect.Inspector
	notice    *notice.Renderer
	history   *history.Log
	coverage  []string
	logger    *slog.Logger
}

// Outcome is what a caller gets back for a page.
type Outcome struct {
	PageURL   string          `json:"page_url"`
	ErrorPage bool            `json:"error_page"`
	Covered   bool            `json:"covered"`
	Via       string          `json:"via,omitempty"`
	Result    recovery.Result `json:"result"`
	Bar       string          `json:"bar,omitempty"`
	PassID    string          `json:"pass_id,omitempty"`
}

// DigestInfo describes where a URL lands in the index.
type DigestInfo struct {
	URL    string `json:"url"`
	Digest string `json:"digest"`
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
	Shard  string `json:"shard"`
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("finder: orchestrator is required")
	}
	if cfg.Notice == nil {
		cfg.Notice = notice.New(notice.Config{})
	}
	if cfg.Coverage == nil {
		cfg.Coverage = []string{DefaultCoverage}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		orch:      cfg.Orchestrator,
		inspector: cfg.Inspector,
		notice:    cfg.Notice,
		history:   cfg.History,
		coverage:  cfg.Coverage,
		logger:    cfg.Logger,
	}, nil
}

// Covered reports whether pageURL falls under one of the indexed prefixes.
func (s *Service) Covered(pageURL string) bool {
	for _, p := range s.coverage {
		if strings.HasPrefix(pageURL, p) {
			return true
		}
	}
	return false
}

// Resolve runs a pass for pageURL, which the caller asserts is an error
// page. Pages outside the coverage skip the pass and come back NotFound.
func (s *Service) Resolve(ctx context.Context, pageURL string) (Outcome, error) {
	return s.resolve(ctx, pageURL, "")
}

func (s *Service) resolve(ctx context.Context, pageURL, via string) (Outcome, error) {
	if !candidates.IsAbsolute(pageURL) {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidURL, pageURL)
	}
	out := Outcome{PageURL: pageURL, ErrorPage: true, Via: via}
	if !s.Covered(pageURL) {
		s.logger.DebugContext(ctx, "finder: page outside index coverage", "url", pageURL)
		out.Result = recovery.Result{CurrentURL: pageURL, State: recovery.Exhausted, Attempts: []recovery.Attempt{}}
		return out, nil
	}
	out.Covered = true

	start := time.Now()
	out.Result = s.orch.ResolveArticle(ctx, pageURL)
	took := time.Since(start)

	bar, err := s.notice.Render(pageURL, out.Result)
	if err != nil {
		s.logger.WarnContext(ctx, "finder: render bar", "url", pageURL, "error", err)
	}
	out.Bar = bar

	if s.history != nil {
		// A pass outlives a cancelled caller in the log.
		id, err := s.history.Record(context.WithoutCancel(ctx), history.FromResult(out.Result, true, via, took))
		if err != nil {
			s.logger.ErrorContext(ctx, "finder: record pass", "url", pageURL, "error", err)
		}
		out.PassID = id
	}
	return out, nil
}

// Check inspects the live page first and only runs a pass when it is an
// error page. The pass uses the final address after redirects.
func (s *Service) Check(ctx context.Context, pageURL string) (Outcome, error) {
	if s.inspector == nil {
		return Outcome{}, ErrNoInspector
	}
	if !candidates.IsAbsolute(pageURL) {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidURL, pageURL)
	}
	sig, err := s.inspector.Inspect(ctx, pageURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("finder: inspect %s: %w", pageURL, err)
	}
	if !sig.IsErrorPage {
		s.logger.DebugContext(ctx, "finder: page is not an error page", "url", sig.PageURL, "via", sig.Via)
		return Outcome{PageURL: sig.PageURL, Via: sig.Via, Covered: s.Covered(sig.PageURL)}, nil
	}
	return s.resolve(ctx, sig.PageURL, sig.Via)
}

// Candidates returns the candidate list for pageURL without resolving it.
func (s *Service) Candidates(pageURL string) ([]string, error) {
	if !candidates.IsAbsolute(pageURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, pageURL)
	}
	return s.orch.Candidates(pageURL), nil
}

// Digest returns the fingerprint of rawURL and the shard it lives in.
func Digest(rawURL string) DigestInfo {
	d := fingerprint.Of(rawURL)
	prefix, suffix := d.Split()
	return DigestInfo{
		URL:    rawURL,
		Digest: d.String(),
		Prefix: prefix,
		Suffix: suffix,
		Shard:  shardindex.ShardPath(prefix),
	}
}

// Recent lists the latest recorded passes.
func (s *Service) Recent(ctx context.Context, limit int) ([]history.Pass, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	return s.history.Recent(ctx, limit)
}
