// Package ledger keeps SQLite bookkeeping of collection runs and the chunk
// flushes each run performed.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"twits-archive-tool/internal/collector"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	request_json TEXT NOT NULL,
	final_anchor TEXT,
	final_max_id INTEGER,
	status       TEXT NOT NULL,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS flushes (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	seq          INTEGER NOT NULL,
	filename     TEXT NOT NULL,
	chunk_anchor TEXT NOT NULL,
	next_anchor  TEXT NOT NULL,
	next_max_id  INTEGER NOT NULL,
	messages     INTEGER NOT NULL,
	written      INTEGER NOT NULL,
	low_id       INTEGER NOT NULL,
	high_id      INTEGER NOT NULL,
	oldest       TEXT,
	newest       TEXT,
	flushed_at   TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_flushes_filename ON flushes(filename);
`

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("ledger: not found")

// Ledger is a handle on the bookkeeping database.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Ledger) { g.log = l } }

// WithClock replaces time.Now for recorded timestamps.
func WithClock(now func() time.Time) Option { return func(g *Ledger) { g.now = now } }

// Open opens (creating if needed) the ledger at path. ":memory:" gives a
// private in-memory database.
func Open(path string, opts ...Option) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: exec schema: %w", err)
	}

	l := &Ledger{db: db, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	l.log.Debug("ledger opened", "path", path)
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.String)
}

// Run is an open collection run. It implements collector.Recorder.
type Run struct {
	ID        string
	StartedAt time.Time
	l         *Ledger
}

// StartRun inserts a running run for req.
func (l *Ledger) StartRun(ctx context.Context, req collector.CollectionRequest) (*Run, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode request: %w", err)
	}
	r := &Run{ID: ulid.Make().String(), StartedAt: l.now().UTC(), l: l}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, request_json, status) VALUES (?, ?, ?, ?)`,
		r.ID, formatTime(r.StartedAt), string(reqJSON), StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("ledger: insert run: %w", err)
	}
	l.log.Debug("run started", "run", r.ID)
	return r, nil
}

// RecordFlush stores one flush of the run.
func (r *Run) RecordFlush(ctx context.Context, rec collector.FlushRecord) error {
	_, err := r.l.db.ExecContext(ctx,
		`INSERT INTO flushes (run_id, seq, filename, chunk_anchor, next_anchor, next_max_id,
			messages, written, low_id, high_id, oldest, newest, flushed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, rec.Seq, rec.Filename, formatTime(rec.Chunk.Anchor), formatTime(rec.Next.Anchor), rec.Next.MaxID,
		rec.Messages, rec.Written, rec.LowID, rec.HighID, formatTime(rec.Oldest), formatTime(rec.Newest),
		formatTime(r.l.now()))
	if err != nil {
		return fmt.Errorf("ledger: insert flush %d: %w", rec.Seq, err)
	}
	return nil
}

// Finish closes the run with the final chunk state. A non-nil runErr marks
// the run failed and stores its message.
func (r *Run) Finish(ctx context.Context, final collector.ChunkState, runErr error) error {
	status := StatusCompleted
	var msg sql.NullString
	if runErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := r.l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, final_anchor = ?, final_max_id = ?, status = ?, error = ? WHERE id = ?`,
		formatTime(r.l.now()), formatTime(final.Anchor), final.MaxID, status, msg, r.ID)
	if err != nil {
		return fmt.Errorf("ledger: finish run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger: finish run %s: %w", r.ID, ErrNotFound)
	}
	r.l.log.Debug("run finished", "run", r.ID, "status", status)
	return nil
}
