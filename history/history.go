// Package history keeps an audit log of resolution passes in SQLite.
//
// Only outcomes are stored. Shard contents are never written here, so the
// log cannot act as a lookup cache.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/deekay/idgen"
	"github.com/hazyhaar/deekay/recovery"
)

// Schema is the DDL for the pass log.
const Schema = `
CREATE TABLE IF NOT EXISTS passes (
    pass_id     TEXT PRIMARY KEY,
    page_url    TEXT NOT NULL,
    covered     INTEGER NOT NULL DEFAULT 1,
    found       INTEGER NOT NULL DEFAULT 0,
    snapshot_id TEXT NOT NULL DEFAULT '',
    candidate   TEXT NOT NULL DEFAULT '',
    archive_url TEXT NOT NULL DEFAULT '',
    attempts    TEXT NOT NULL DEFAULT '[]',
    via         TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_passes_created ON passes(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_passes_page ON passes(page_url);
`

// Pass is one recorded resolution pass.
type Pass struct {
	ID         string             `json:"id"`
	PageURL    string             `json:"page_url"`
	Covered    bool               `json:"covered"`
	Found      bool               `json:"found"`
	SnapshotID string             `json:"snapshot_id,omitempty"`
	Candidate  string             `json:"candidate,omitempty"`
	ArchiveURL string             `json:"archive_url,omitempty"`
	Attempts   []recovery.Attempt `json:"attempts"`
	Via        string             `json:"via,omitempty"`
	DurationMS int64              `json:"duration_ms"`
	CreatedAt  int64              `json:"created_at"`
}

// FromResult builds a Pass from an orchestrator result.
func FromResult(res recovery.Result, covered bool, via string, took time.Duration) Pass {
	return Pass{
		PageURL:    res.CurrentURL,
		Covered:    covered,
		Found:      res.Found,
		SnapshotID: res.SnapshotID,
		Candidate:  res.Candidate,
		ArchiveURL: res.ArchiveURL,
		Attempts:   res.Attempts,
		Via:        via,
		DurationMS: took.Milliseconds(),
	}
}

// Log writes and reads passes.
type Log struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator sets the generator for pass IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Log) { l.newID = gen }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New applies Schema to db and returns a Log.
func New(db *sql.DB, opts ...Option) (*Log, error) {
	if db == nil {
		return nil, fmt.Errorf("history: DB is required")
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	l := &Log{db: db, newID: idgen.PassID, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Record stores p and returns its ID. ID and CreatedAt are assigned when
// empty.
func (l *Log) Record(ctx context.Context, p Pass) (string, error) {
	if p.ID == "" {
		p.ID = l.newID()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = l.now().Unix()
	}
	if p.Attempts == nil {
		p.Attempts = []recovery.Attempt{}
	}
	attempts, err := json.Marshal(p.Attempts)
	if err != nil {
		return "", fmt.Errorf("history: encode attempts: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO passes (
			pass_id, page_url, covered, found, snapshot_id, candidate,
			archive_url, attempts, via, duration_ms, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.PageURL, p.Covered, p.Found, p.SnapshotID, p.Candidate,
		p.ArchiveURL, string(attempts), p.Via, p.DurationMS, p.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("history: insert pass: %w", err)
	}
	return p.ID, nil
}

// Recent returns up to limit passes, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Pass, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT pass_id, page_url, covered, found, snapshot_id, candidate,
		       archive_url, attempts, via, duration_ms, created_at
		FROM passes
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query passes: %w", err)
	}
	defer rows.Close()

	var out []Pass
	for rows.Next() {
		var p Pass
		var attempts string
		if err := rows.Scan(&p.ID, &p.PageURL, &p.Covered, &p.Found, &p.SnapshotID,
			&p.Candidate, &p.ArchiveURL, &attempts, &p.Via, &p.DurationMS, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan pass: %w", err)
		}
		if err := json.Unmarshal([]byte(attempts), &p.Attempts); err != nil {
			return nil, fmt.Errorf("history: decode attempts of %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Cleanup deletes passes older than days. Zero or negative keeps everything.
func (l *Log) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := l.now().Unix() - int64(days*86400)
	res, err := l.db.ExecContext(ctx, `DELETE FROM passes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: cleanup: %w", err)
	}
	return res.RowsAffected()
}
