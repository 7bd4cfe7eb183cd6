// Package shardindex resolves a candidate URL against the offline-built
// archive index. The index is partitioned by the first two hex characters
// of the URL digest; each partition is a JSON object mapping the remaining
// characters to a Wayback snapshot ID:
//
//	hashes/f3.json  {"54de6998bd4d42eab5933f010dacd1ce6b2e95": "20210101000000", ...}
//
// Shards are fetched per lookup and never cached.
package shardindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/deekay/fingerprint"
)

// Lookup is the outcome of resolving one candidate.
type Lookup struct {
	Candidate  string
	Digest     fingerprint.Digest
	Address    string // shard address that was consulted
	SnapshotID string
	Found      bool
	// Err is ErrLookupMiss, *FetchError or *ParseError when Found is false.
	// Callers treat all three as "try the next candidate".
	Err error
}

// Resolver checks single candidates against the index.
type Resolver struct {
	locator   Locator
	transport Transport
	logger    *slog.Logger
}

// New creates a Resolver. A nil logger uses slog.Default().
func New(locator Locator, transport Transport, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{locator: locator, transport: transport, logger: logger}
}

// Resolve looks candidate up. It never returns an error: failures are
// reported in Lookup.Err and logged.
func (r *Resolver) Resolve(ctx context.Context, candidate string) Lookup {
	d := fingerprint.Of(candidate)
	prefix, suffix := d.Split()
	lk := Lookup{Candidate: candidate, Digest: d}

	r.logger.DebugContext(ctx, "shardindex: candidate digest",
		"candidate", candidate, "digest", d.String(), "prefix", prefix)

	shard, address, err := r.FetchShard(ctx, prefix)
	lk.Address = address
	if err != nil {
		lk.Err = err
		r.logger.WarnContext(ctx, "shardindex: shard unavailable",
			"candidate", candidate, "address", address, "kind", Kind(err), "error", err)
		return lk
	}

	id, ok := shard.Lookup(suffix)
	if !ok {
		lk.Err = ErrLookupMiss
		r.logger.DebugContext(ctx, "shardindex: hash not in shard",
			"candidate", candidate, "address", address)
		return lk
	}

	lk.Found = true
	lk.SnapshotID = id
	r.logger.InfoContext(ctx, "shardindex: hash found",
		"candidate", candidate, "address", address, "snapshot", id)
	return lk
}

// FetchShard retrieves and parses the shard for prefix. It returns the
// address it used even on failure.
func (r *Resolver) FetchShard(ctx context.Context, prefix string) (Shard, string, error) {
	if !fingerprint.ValidPrefix(prefix) {
		return nil, "", fmt.Errorf("%w: %q", ErrBadPrefix, prefix)
	}
	address, err := r.locator.Locate(ShardPath(prefix))
	if err != nil {
		return nil, "", &FetchError{Address: ShardPath(prefix), Cause: err}
	}

	data, err := r.transport.Fetch(ctx, address)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Address: address, Cause: err}
		}
		return nil, address, err
	}

	shard, err := ParseShard(data)
	if err != nil {
		return nil, address, &ParseError{Address: address, Cause: err}
	}
	return shard, address, nil
}
