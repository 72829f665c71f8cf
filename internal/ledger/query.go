package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunInfo is a stored run.
type RunInfo struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	RequestJSON string
	FinalAnchor time.Time
	FinalMaxID  int64
	Status      string
	Error       string
	Flushes     int
	Written     int
}

// FlushInfo is a stored flush.
type FlushInfo struct {
	RunID       string
	Seq         int
	Filename    string
	ChunkAnchor time.Time
	NextAnchor  time.Time
	NextMaxID   int64
	Messages    int
	Written     int
	LowID       int64
	HighID      int64
	Oldest      time.Time
	Newest      time.Time
	FlushedAt   time.Time
}

const runColumns = `r.id, r.started_at, r.finished_at, r.request_json, r.final_anchor, r.final_max_id,
	r.status, r.error, COUNT(f.seq), COALESCE(SUM(f.written), 0)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunInfo, error) {
	var (
		ri                        RunInfo
		started, finished, anchor sql.NullString
		maxID                     sql.NullInt64
		errMsg                    sql.NullString
	)
	if err := s.Scan(&ri.ID, &started, &finished, &ri.RequestJSON, &anchor, &maxID,
		&ri.Status, &errMsg, &ri.Flushes, &ri.Written); err != nil {
		return RunInfo{}, err
	}
	var err error
	if ri.StartedAt, err = parseTime(started); err != nil {
		return RunInfo{}, err
	}
	if ri.FinishedAt, err = parseTime(finished); err != nil {
		return RunInfo{}, err
	}
	if ri.FinalAnchor, err = parseTime(anchor); err != nil {
		return RunInfo{}, err
	}
	ri.FinalMaxID = maxID.Int64
	ri.Error = errMsg.String
	return ri, nil
}

// Runs lists the most recent runs first. limit <= 0 lists all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	q := `SELECT ` + runColumns + ` FROM runs r LEFT JOIN flushes f ON f.run_id = r.id
		GROUP BY r.id ORDER BY r.id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		ri, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// Run returns one run by id.
func (l *Ledger) Run(ctx context.Context, id string) (RunInfo, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r LEFT JOIN flushes f ON f.run_id = r.id
		WHERE r.id = ? GROUP BY r.id`, id)
	ri, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("ledger: run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("ledger: run %s: %w", id, err)
	}
	return ri, nil
}

// Flushes lists the flushes of a run in order.
func (l *Ledger) Flushes(ctx context.Context, runID string) ([]FlushInfo, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, seq, filename, chunk_anchor, next_anchor, next_max_id, messages, written,
			low_id, high_id, oldest, newest, flushed_at
		 FROM flushes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list flushes: %w", err)
	}
	defer rows.Close()

	var out []FlushInfo
	for rows.Next() {
		var (
			fi                                     FlushInfo
			chunk, next, oldest, newest, flushedAt sql.NullString
		)
		if err := rows.Scan(&fi.RunID, &fi.Seq, &fi.Filename, &chunk, &next, &fi.NextMaxID,
			&fi.Messages, &fi.Written, &fi.LowID, &fi.HighID, &oldest, &newest, &flushedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan flush: %w", err)
		}
		for _, p := range []struct {
			dst *time.Time
			src sql.NullString
		}{{&fi.ChunkAnchor, chunk}, {&fi.NextAnchor, next}, {&fi.Oldest, oldest}, {&fi.Newest, newest}, {&fi.FlushedAt, flushedAt}} {
			t, err := parseTime(p.src)
			if err != nil {
				return nil, fmt.Errorf("ledger: flush %d: %w", fi.Seq, err)
			}
			*p.dst = t
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

// HighWater is the highest message id flushed by any completed run, or 0.
// Passing it as since id makes the next run fetch only newer messages.
func (l *Ledger) HighWater(ctx context.Context) (int64, error) {
	var hw sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(f.high_id) FROM flushes f JOIN runs r ON r.id = f.run_id WHERE r.status = ?`,
		StatusCompleted).Scan(&hw)
	if err != nil {
		return 0, fmt.Errorf("ledger: high water: %w", err)
	}
	return hw.Int64, nil
}
