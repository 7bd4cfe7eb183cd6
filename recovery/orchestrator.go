// Package recovery drives a resolution pass: expand the page address into
// candidates, check each against the sharded index in order, and stop at the
// first hit.
//
// The scan is strictly sequential. Candidates are ordered by confidence, so
// once one resolves the rest are not consulted.
package recovery

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/deekay/shardindex"
)

// DefaultArchiveBase is the Wayback Machine prefix snapshots are served from.
const DefaultArchiveBase = "https://web.archive.org/web"

// Generator produces candidates for a page address.
type Generator interface {
	Generate(currentURL string) []string
}

// Resolver checks one candidate.
type Resolver interface {
	Resolve(ctx context.Context, candidate string) shardindex.Lookup
}

// Attempt records what happened to one candidate during a pass.
type Attempt struct {
	Candidate string `json:"candidate"`
	Digest    string `json:"digest"`
	// Outcome is "found", "miss", "fetch" or "parse".
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a pass: Found with the snapshot and the
// candidate that matched, or NotFound.
type Result struct {
	CurrentURL string    `json:"current_url"`
	Found      bool      `json:"found"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Candidate  string    `json:"candidate,omitempty"`
	ArchiveURL string    `json:"archive_url,omitempty"`
	State      State     `json:"-"`
	Attempts   []Attempt `json:"attempts"`
}

// Config holds the per-deployment constants of the orchestrator.
type Config struct {
	// ArchiveBase is prepended to "<snapshot>/<candidate>".
	// Default: DefaultArchiveBase.
	ArchiveBase string
}

// Orchestrator runs resolution passes. It keeps no state between passes.
type Orchestrator struct {
	gen      Generator
	resolver Resolver
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver registers a callback for state transitions.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// New creates an Orchestrator.
func New(gen Generator, resolver Resolver, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ArchiveBase == "" {
		cfg.ArchiveBase = DefaultArchiveBase
	}
	o := &Orchestrator{
		gen:      gen,
		resolver: resolver,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Candidates exposes the generator output for currentURL.
func (o *Orchestrator) Candidates(currentURL string) []string {
	return o.gen.Generate(currentURL)
}

// ResolveArticle runs one pass for currentURL. It always returns a Result;
// shard failures only show up in Attempts and the logs. If ctx is cancelled
// the pass stops before the next candidate and ends Exhausted.
func (o *Orchestrator) ResolveArticle(ctx context.Context, currentURL string) Result {
	res := Result{CurrentURL: currentURL, State: Idle}
	candidates := o.gen.Generate(currentURL)
	o.logger.DebugContext(ctx, "recovery: candidates", "url", currentURL, "count", len(candidates))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			o.logger.WarnContext(ctx, "recovery: pass interrupted", "url", currentURL, "at", i, "error", err)
			break
		}
		o.move(&res, Scanning, i, c)

		lk := o.resolver.Resolve(ctx, c)
		att := Attempt{Candidate: c, Digest: lk.Digest.String(), Outcome: "found"}
		if !lk.Found {
			att.Outcome = shardindex.Kind(lk.Err)
			if att.Outcome == "" {
				att.Outcome = "miss"
			}
			if lk.Err != nil && att.Outcome != "miss" {
				att.Error = lk.Err.Error()
			}
		}
		res.Attempts = append(res.Attempts, att)

		if lk.Found {
			res.Found = true
			res.SnapshotID = lk.SnapshotID
			res.Candidate = c
			res.ArchiveURL = ArchiveURL(o.cfg.ArchiveBase, lk.SnapshotID, c)
			o.move(&res, Resolved, i, c)
			o.logger.InfoContext(ctx, "recovery: article resolved",
				"url", currentURL, "candidate", c, "archive_url", res.ArchiveURL)
			return res
		}
	}

	o.move(&res, Exhausted, -1, "")
	o.logger.InfoContext(ctx, "recovery: no archived copy", "url", currentURL, "tried", len(res.Attempts))
	return res
}

func (o *Orchestrator) move(res *Result, to State, index int, candidate string) {
	t := Transition{From: res.State, To: to, Index: index, Candidate: candidate}
	res.State = to
	if o.observer != nil {
		o.observer(t)
	}
}

// ArchiveURL builds "<base>/<snapshotID>/<candidate>". The candidate is
// appended verbatim, scheme included, as the Wayback Machine expects.
func ArchiveURL(base, snapshotID, candidate string) string {
	return strings.TrimRight(base, "/") + "/" + snapshotID + "/" + candidate
}
