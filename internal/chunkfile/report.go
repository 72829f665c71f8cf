package chunkfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"twits-archive-tool/internal/collector"
)

// ReportOptions selects the chunk range to inspect. From and To are
// inclusive and floored to Granularity.
type ReportOptions struct {
	Dir         string
	Naming      Naming
	Granularity collector.Granularity
	From        time.Time
	To          time.Time
	Log         *slog.Logger
}

// FileStats summarizes one chunk file.
type FileStats struct {
	Path string
	Date time.Time
	// Arrays is the number of top-level JSON arrays, one per append flush.
	Arrays     int
	Messages   int
	Unique     int
	Duplicates int
	// OutsideChunk counts messages whose created_at floors to another chunk.
	OutsideChunk int
	LowID        int64
	HighID       int64
	Oldest       time.Time
	Newest       time.Time
	Err          error
}

// Report is the coverage of a chunk range.
type Report struct {
	Expected int
	Missing  []string
	Files    []FileStats
}

// BuildReport checks every chunk between From and To for a file, plain or
// compressed, and collects per-file statistics.
func BuildReport(opts ReportOptions) (Report, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	g, err := collector.ParseGranularity(string(opts.Granularity))
	if err != nil {
		return Report{}, err
	}
	if opts.From.IsZero() || opts.To.IsZero() {
		return Report{}, errors.New("chunkfile: report needs both from and to")
	}
	if opts.To.Before(opts.From) {
		return Report{}, fmt.Errorf("chunkfile: report range ends before it starts")
	}
	log.Info("Starting summary report generation", "dir", opts.Dir, "granularity", g,
		"from", opts.From.Format(time.DateOnly), "to", opts.To.Format(time.DateOnly))

	var rep Report
	for d := collector.Floor(opts.From, g); !d.After(opts.To); d = nextChunk(d, g) {
		rep.Expected++
		name := opts.Naming.Name(d)
		path, ok := findChunk(opts.Dir, name)
		if !ok {
			missing := filepath.ToSlash(filepath.Join(opts.Dir, name))
			log.Debug("Missing chunk file", "path", missing)
			rep.Missing = append(rep.Missing, missing)
			continue
		}
		st := fileStats(path, d, g)
		if st.Err != nil {
			log.Warn("Could not load or parse file", "path", path, "error", st.Err)
		}
		rep.Files = append(rep.Files, st)
	}
	log.Info("Summary report finished", "expected", rep.Expected, "missing", len(rep.Missing))
	return rep, nil
}

// findChunk returns the first existing variant of name: plain, then each
// compressed extension.
func findChunk(dir, name string) (string, bool) {
	base := filepath.Join(dir, name)
	for _, ext := range append([]string{""}, compressedExts...) {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, true
		}
	}
	return "", false
}

func fileStats(path string, date time.Time, g collector.Granularity) FileStats {
	st := FileStats{Path: path, Date: date}
	arrays, err := ReadFile(path)
	if err != nil {
		st.Err = err
		return st
	}
	st.Arrays = len(arrays)
	seen := make(map[int64]struct{})
	for _, a := range arrays {
		for _, m := range a {
			if st.Messages == 0 {
				st.LowID, st.HighID = m.ID, m.ID
				st.Oldest, st.Newest = m.CreatedAt, m.CreatedAt
			}
			st.Messages++
			if _, dup := seen[m.ID]; dup {
				st.Duplicates++
			} else {
				seen[m.ID] = struct{}{}
			}
			if !collector.SameChunk(m.CreatedAt, date, g) {
				st.OutsideChunk++
			}
			st.LowID = min(st.LowID, m.ID)
			st.HighID = max(st.HighID, m.ID)
			if m.CreatedAt.Before(st.Oldest) {
				st.Oldest = m.CreatedAt
			}
			if m.CreatedAt.After(st.Newest) {
				st.Newest = m.CreatedAt
			}
		}
	}
	st.Unique = len(seen)
	return st
}
