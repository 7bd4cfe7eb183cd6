package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/goleak"

	"github.com/hazyhaar/deekay/candidates"
	"github.com/hazyhaar/deekay/fingerprint"
	"github.com/hazyhaar/deekay/shardindex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type staticGen []string

func (g staticGen) Generate(string) []string { return g }

// mapResolver answers from a candidate→snapshot map and records call order.
type mapResolver struct {
	hits  map[string]string
	fail  map[string]error
	calls []string
}

func (r *mapResolver) Resolve(_ context.Context, c string) shardindex.Lookup {
	r.calls = append(r.calls, c)
	lk := shardindex.Lookup{Candidate: c, Digest: fingerprint.Of(c)}
	if err, ok := r.fail[c]; ok {
		lk.Err = err
		return lk
	}
	if id, ok := r.hits[c]; ok {
		lk.Found, lk.SnapshotID = true, id
		return lk
	}
	lk.Err = shardindex.ErrLookupMiss
	return lk
}

func TestResolveArticle_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	const current = "https://magic.wizards.com/en/news/abc"
	const archived = "https://magic.wizards.com/en/articles/archive/abc"

	d := fingerprint.Of(archived)
	if d.Prefix() != "f3" {
		t.Fatalf("unexpected digest %s", d)
	}
	data, _ := json.Marshal(map[string]string{d.Suffix(): "20210101000000"})
	if err := os.WriteFile(filepath.Join(dir, "f3.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	res := shardindex.New(shardindex.NewBaseLocator(dir), shardindex.DirTransport{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	o := New(candidates.MustNew(nil), res, Config{}, quiet())

	got := o.ResolveArticle(context.Background(), current)
	if !got.Found || got.State != Resolved {
		t.Fatalf("expected Resolved, got %+v", got)
	}
	if got.SnapshotID != "20210101000000" || got.Candidate != archived {
		t.Errorf("got snapshot %q candidate %q", got.SnapshotID, got.Candidate)
	}
	want := "https://web.archive.org/web/20210101000000/https://magic.wizards.com/en/articles/archive/abc"
	if got.ArchiveURL != want {
		t.Errorf("ArchiveURL = %q, want %q", got.ArchiveURL, want)
	}
	if len(got.Attempts) != 2 || got.Attempts[0].Outcome != "fetch" || got.Attempts[1].Outcome != "found" {
		t.Errorf("attempts = %+v", got.Attempts)
	}
}

func TestResolveArticle_NoHit(t *testing.T) {
	dir := t.TempDir()
	// A shard exists for every candidate prefix but holds none of them.
	for _, c := range candidates.MustNew(nil).Generate("https://magic.wizards.com/en/news/gone") {
		p := fingerprint.Of(c).Prefix()
		if err := os.WriteFile(filepath.Join(dir, p+".json"), []byte(`{"00": "20200101000000"}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res := shardindex.New(shardindex.NewBaseLocator(dir), shardindex.DirTransport{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	o := New(candidates.MustNew(nil), res, Config{}, quiet())

	got := o.ResolveArticle(context.Background(), "https://magic.wizards.com/en/news/gone")
	if got.Found || got.State != Exhausted {
		t.Fatalf("expected Exhausted, got %+v", got)
	}
	if got.ArchiveURL != "" || got.SnapshotID != "" {
		t.Errorf("NotFound carries data: %+v", got)
	}
	if len(got.Attempts) != 4 {
		t.Fatalf("attempts = %d, want 4", len(got.Attempts))
	}
	for _, a := range got.Attempts {
		if a.Outcome != "miss" {
			t.Errorf("attempt %q outcome %q, want miss", a.Candidate, a.Outcome)
		}
	}
}

func TestResolveArticle_FirstHitWins(t *testing.T) {
	gen := staticGen{"a", "b", "c", "d"}
	r := &mapResolver{hits: map[string]string{"b": "2001", "c": "2002", "d": "2003"}}
	o := New(gen, r, Config{ArchiveBase: "https://archive.example/web/"}, quiet())

	got := o.ResolveArticle(context.Background(), "a")
	if got.Candidate != "b" || got.SnapshotID != "2001" {
		t.Fatalf("got %+v, want candidate b", got)
	}
	if got.ArchiveURL != "https://archive.example/web/2001/b" {
		t.Errorf("ArchiveURL = %q", got.ArchiveURL)
	}
	if !reflect.DeepEqual(r.calls, []string{"a", "b"}) {
		t.Errorf("resolver calls = %v, want [a b]", r.calls)
	}
}

func TestResolveArticle_FailuresAreNotFatal(t *testing.T) {
	gen := staticGen{"a", "b", "c"}
	r := &mapResolver{
		fail: map[string]error{
			"a": &shardindex.FetchError{Address: "x", Cause: errors.New("down")},
			"b": &shardindex.ParseError{Address: "y", Cause: errors.New("junk")},
		},
	}
	o := New(gen, r, Config{}, quiet())

	got := o.ResolveArticle(context.Background(), "a")
	if got.Found {
		t.Fatal("expected NotFound")
	}
	outcomes := []string{got.Attempts[0].Outcome, got.Attempts[1].Outcome, got.Attempts[2].Outcome}
	if !reflect.DeepEqual(outcomes, []string{"fetch", "parse", "miss"}) {
		t.Errorf("outcomes = %v", outcomes)
	}
	if got.Attempts[0].Error == "" || got.Attempts[2].Error != "" {
		t.Errorf("error strings = %+v", got.Attempts)
	}
}

func TestResolveArticle_Transitions(t *testing.T) {
	var trs []Transition
	gen := staticGen{"a", "b"}
	r := &mapResolver{hits: map[string]string{"b": "1"}}
	o := New(gen, r, Config{}, quiet(), WithObserver(func(tr Transition) { trs = append(trs, tr) }))

	o.ResolveArticle(context.Background(), "a")
	want := []Transition{
		{From: Idle, To: Scanning, Index: 0, Candidate: "a"},
		{From: Scanning, To: Scanning, Index: 1, Candidate: "b"},
		{From: Scanning, To: Resolved, Index: 1, Candidate: "b"},
	}
	if !reflect.DeepEqual(trs, want) {
		t.Fatalf("transitions =\n%+v\nwant\n%+v", trs, want)
	}

	trs = nil
	New(staticGen{"x"}, &mapResolver{}, Config{}, quiet(),
		WithObserver(func(tr Transition) { trs = append(trs, tr) })).ResolveArticle(context.Background(), "x")
	if last := trs[len(trs)-1]; last.To != Exhausted || !last.To.Terminal() {
		t.Fatalf("last transition = %+v, want Exhausted", last)
	}
}

func TestResolveArticle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := staticGen{"a", "b", "c"}
	r := &mapResolver{}
	// Cancel once the first candidate has been checked.
	o := New(gen, r, Config{}, quiet(), WithObserver(func(tr Transition) {
		if tr.To == Scanning && tr.Index == 1 {
			t.Fatal("scanned past cancellation")
		}
	}))
	wrapped := resolverFunc(func(c context.Context, cand string) shardindex.Lookup {
		defer cancel()
		return r.Resolve(c, cand)
	})
	o.resolver = wrapped

	got := o.ResolveArticle(ctx, "a")
	if got.Found || got.State != Exhausted || len(got.Attempts) != 1 {
		t.Fatalf("got %+v", got)
	}
}

type resolverFunc func(context.Context, string) shardindex.Lookup

func (f resolverFunc) Resolve(ctx context.Context, c string) shardindex.Lookup { return f(ctx, c) }

func TestResolveArticle_NoCandidates(t *testing.T) {
	got := New(staticGen{}, &mapResolver{}, Config{}, quiet()).ResolveArticle(context.Background(), "x")
	if got.Found || got.State != Exhausted {
		t.Fatalf("got %+v", got)
	}
}

func TestArchiveURL(t *testing.T) {
	tests := []struct{ base, id, cand, want string }{
		{DefaultArchiveBase, "20210101000000", "https://a.example/x",
			"https://web.archive.org/web/20210101000000/https://a.example/x"},
		{"https://web.archive.org/web/", "1", "http://b.example/",
			"https://web.archive.org/web/1/http://b.example/"},
	}
	for _, tt := range tests {
		if got := ArchiveURL(tt.base, tt.id, tt.cand); got != tt.want {
			t.Errorf("ArchiveURL(%q,%q,%q) = %q, want %q", tt.base, tt.id, tt.cand, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Scanning: "scanning", Resolved: "resolved", Exhausted: "exhausted", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d) = %q, want %q", s, s.String(), want)
		}
	}
}

func TestNew_NilLoggerFallsBack(t *testing.T) {
	r := &mapResolver{hits: map[string]string{"a": "20200101000000"}}
	o := New(staticGen{"a"}, r, Config{}, WithLogger(nil))
	if got := o.ResolveArticle(context.Background(), "a"); !got.Found {
		t.Fatalf("result = %+v, want found", got)
	}
}
