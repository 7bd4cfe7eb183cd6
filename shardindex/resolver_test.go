package shardindex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/deekay/fingerprint"
	"github.com/hazyhaar/deekay/horosafe"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeShards lays out index files for url→snapshot entries under dir.
func writeShards(t *testing.T, dir string, entries map[string]string) {
	t.Helper()
	shards := map[string]map[string]string{}
	for u, id := range entries {
		p, s := fingerprint.Of(u).Split()
		if shards[p] == nil {
			shards[p] = map[string]string{}
		}
		shards[p][s] = id
	}
	for p, m := range shards {
		data, err := json.MarshalIndent(m, "", "    ")
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, p+".json"), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func testHTTPResolver(t *testing.T, dir string) (*Resolver, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	files := http.StripPrefix("/hashes", http.FileServer(http.Dir(dir)))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	tr := NewHTTPTransport(HTTPConfig{URLValidator: horosafe.AllowAll})
	t.Cleanup(tr.Close)
	return New(NewBaseLocator(srv.URL+"/hashes"), tr, quietLogger()), &hits
}

const archiveABC = "https://magic.wizards.com/en/articles/archive/abc"

func TestResolve_FoundHTTP(t *testing.T) {
	dir := t.TempDir()
	writeShards(t, dir, map[string]string{archiveABC: "20210101000000"})
	r, _ := testHTTPResolver(t, dir)

	lk := r.Resolve(context.Background(), archiveABC)
	if !lk.Found {
		t.Fatalf("expected Found, got err %v", lk.Err)
	}
	if lk.SnapshotID != "20210101000000" || lk.Candidate != archiveABC {
		t.Errorf("got %+v", lk)
	}
	if lk.Digest != "f354de6998bd4d42eab5933f010dacd1ce6b2e95" {
		t.Errorf("digest = %s", lk.Digest)
	}
	if !strings.HasSuffix(lk.Address, "/hashes/f3.json") {
		t.Errorf("address = %s", lk.Address)
	}
}

func TestResolve_MissInExistingShard(t *testing.T) {
	dir := t.TempDir()
	// Same prefix as archiveABC, different suffix.
	p, _ := fingerprint.Of(archiveABC).Split()
	os.WriteFile(filepath.Join(dir, p+".json"), []byte(`{"0000": "20200101000000"}`), 0o644)
	r, _ := testHTTPResolver(t, dir)

	lk := r.Resolve(context.Background(), archiveABC)
	if lk.Found {
		t.Fatal("expected miss")
	}
	if !errors.Is(lk.Err, ErrLookupMiss) || Kind(lk.Err) != "miss" {
		t.Errorf("err = %v (kind %q)", lk.Err, Kind(lk.Err))
	}
}

func TestResolve_FetchFailure(t *testing.T) {
	r, _ := testHTTPResolver(t, t.TempDir())

	lk := r.Resolve(context.Background(), archiveABC)
	if lk.Found {
		t.Fatal("expected not found")
	}
	var fe *FetchError
	if !errors.As(lk.Err, &fe) {
		t.Fatalf("expected FetchError, got %v", lk.Err)
	}
	if fe.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", fe.Status)
	}
	if Kind(lk.Err) != "fetch" {
		t.Errorf("kind = %q", Kind(lk.Err))
	}
}

func TestResolve_ParseFailure(t *testing.T) {
	dir := t.TempDir()
	p, _ := fingerprint.Of(archiveABC).Split()
	os.WriteFile(filepath.Join(dir, p+".json"), []byte(`["not", "an", "object"]`), 0o644)
	r, _ := testHTTPResolver(t, dir)

	lk := r.Resolve(context.Background(), archiveABC)
	var pe *ParseError
	if lk.Found || !errors.As(lk.Err, &pe) {
		t.Fatalf("expected ParseError, got found=%v err=%v", lk.Found, lk.Err)
	}
	if Kind(lk.Err) != "parse" {
		t.Errorf("kind = %q", Kind(lk.Err))
	}
}

func TestResolve_NoCache(t *testing.T) {
	dir := t.TempDir()
	writeShards(t, dir, map[string]string{archiveABC: "20210101000000"})
	r, hits := testHTTPResolver(t, dir)

	for i := 0; i < 3; i++ {
		if lk := r.Resolve(context.Background(), archiveABC); !lk.Found {
			t.Fatalf("round %d: %v", i, lk.Err)
		}
	}
	if hits.Load() != 3 {
		t.Fatalf("shard fetched %d times, want 3", hits.Load())
	}
}

func TestResolve_Dir(t *testing.T) {
	dir := t.TempDir()
	writeShards(t, dir, map[string]string{archiveABC: "20210101000000"})
	r := New(NewBaseLocator(dir), DirTransport{}, quietLogger())

	lk := r.Resolve(context.Background(), archiveABC)
	if !lk.Found || lk.SnapshotID != "20210101000000" {
		t.Fatalf("got %+v", lk)
	}

	lk = r.Resolve(context.Background(), "https://magic.wizards.com/en/news/abc")
	if lk.Found {
		t.Fatal("unexpected hit")
	}
	var fe *FetchError
	if !errors.As(lk.Err, &fe) || !errors.Is(lk.Err, os.ErrNotExist) {
		t.Errorf("expected missing-file FetchError, got %v", lk.Err)
	}
}

func TestResolve_ForeignTransportErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	tr := TransportFunc(func(context.Context, string) ([]byte, error) { return nil, boom })
	r := New(NewBaseLocator("https://cdn.example/hashes"), tr, quietLogger())

	lk := r.Resolve(context.Background(), archiveABC)
	var fe *FetchError
	if !errors.As(lk.Err, &fe) || !errors.Is(lk.Err, boom) {
		t.Fatalf("expected wrapped FetchError, got %v", lk.Err)
	}
	if fe.Address != "https://cdn.example/hashes/f3.json" {
		t.Errorf("address = %q", fe.Address)
	}
}

func TestResolve_LocatorFunc(t *testing.T) {
	shards := map[string][]byte{}
	p, sfx := fingerprint.Of(archiveABC).Split()
	shards["mem://"+ShardPath(p)] = []byte(`{"` + sfx + `": "20200101000000"}`)

	loc := LocatorFunc(func(rel string) (string, error) { return "mem://" + rel, nil })
	tr := TransportFunc(func(_ context.Context, addr string) ([]byte, error) {
		if b, ok := shards[addr]; ok {
			return b, nil
		}
		return nil, os.ErrNotExist
	})
	lk := New(loc, tr, quietLogger()).Resolve(context.Background(), archiveABC)
	if !lk.Found || lk.Address != "mem://f3.json" {
		t.Fatalf("lookup = %+v", lk)
	}
}

func TestResolve_LocatorError(t *testing.T) {
	loc := LocatorFunc(func(string) (string, error) { return "", errors.New("no base") })
	tr := TransportFunc(func(context.Context, string) ([]byte, error) {
		t.Fatal("transport called after locator failure")
		return nil, nil
	})
	lk := New(loc, tr, quietLogger()).Resolve(context.Background(), archiveABC)
	var fe *FetchError
	if lk.Found || !errors.As(lk.Err, &fe) {
		t.Fatalf("expected FetchError, got %+v", lk)
	}
}

func TestFetchShard_BadPrefix(t *testing.T) {
	r := New(NewBaseLocator("https://cdn.example/hashes"), DirTransport{}, quietLogger())
	for _, p := range []string{"", "z1", "abc", "../"} {
		if _, _, err := r.FetchShard(context.Background(), p); !errors.Is(err, ErrBadPrefix) {
			t.Errorf("FetchShard(%q) err = %v, want ErrBadPrefix", p, err)
		}
	}
}

func TestHTTPTransport_ValidatorBlocks(t *testing.T) {
	tr := NewHTTPTransport(HTTPConfig{})
	_, err := tr.Fetch(context.Background(), "http://127.0.0.1:1/ab.json")
	var fe *FetchError
	if !errors.As(err, &fe) || !errors.Is(err, horosafe.ErrSSRF) {
		t.Fatalf("expected SSRF FetchError, got %v", err)
	}
}

func TestHTTPTransport_BodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"a":"` + strings.Repeat("x", 100) + `"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URLValidator: horosafe.AllowAll, MaxBytes: 16})
	_, err := tr.Fetch(context.Background(), srv.URL+"/ab.json")
	if !errors.Is(err, horosafe.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	slow := TransportFunc(func(ctx context.Context, address string) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, &FetchError{Address: address, Cause: ctx.Err()}
		case <-time.After(5 * time.Second):
			return []byte(`{}`), nil
		}
	})
	tr := Chain(slow, WithCallLogging(quietLogger()), WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := tr.Fetch(context.Background(), "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout middleware did not bound the fetch")
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Transport) Transport {
			return TransportFunc(func(ctx context.Context, a string) ([]byte, error) {
				order = append(order, name)
				return next.Fetch(ctx, a)
			})
		}
	}
	base := TransportFunc(func(context.Context, string) ([]byte, error) { return nil, nil })
	Chain(base, mw("outer"), mw("inner")).Fetch(context.Background(), "x")
	if strings.Join(order, ",") != "outer,inner" {
		t.Fatalf("order = %v", order)
	}
}
