package chunkfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"twits-archive-tool/internal/collector"
	"twits-archive-tool/internal/stocktwits"
)

// CompactOptions configures Compact.
type CompactOptions struct {
	InputDir  string
	OutputDir string
	Naming    Naming
	// Group is the output chunk width. It must be at least as coarse as the
	// input files; a day group over day files just normalizes each file.
	Group       collector.Granularity
	Compression Compression
	Log         *slog.Logger
}

// CompactResult describes one written output file.
type CompactResult struct {
	Output   string
	Date     time.Time
	Inputs   []string
	Arrays   int
	Messages int
	Written  int
	Skipped  []string
}

// Compact merges chunk files under InputDir into one deduplicated, id-sorted
// array per Group chunk and writes them under OutputDir. Unreadable input
// files are logged and skipped.
func Compact(ctx context.Context, opts CompactOptions) ([]CompactResult, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.InputDir
	}
	comp, err := ParseCompression(string(opts.Compression))
	if err != nil {
		return nil, err
	}
	opts.Compression = comp
	g, err := collector.ParseGranularity(string(opts.Group))
	if err != nil {
		return nil, err
	}

	log.Info("Starting chunk compaction",
		"input_dir", opts.InputDir,
		"output_dir", opts.OutputDir,
		"group", g,
		"compression", opts.Compression,
	)

	files, err := opts.Naming.scan(opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("chunkfile: scan %s: %w", opts.InputDir, err)
	}
	groups := make(map[time.Time][]chunkFile)
	var keys []time.Time
	for _, f := range files {
		key := collector.Floor(f.date, g)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], f)
	}
	slices.SortFunc(keys, func(a, b time.Time) int { return a.Compare(b) })

	if err := ensureDirectoryExists(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("chunkfile: mkdir %s: %w", opts.OutputDir, err)
	}

	results := make([]CompactResult, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := CompactResult{
			Date:   key,
			Output: filepath.Join(opts.OutputDir, opts.Naming.Name(key)+opts.Compression.Ext()),
		}
		var batches [][]stocktwits.Message
		for _, f := range groups[key] {
			arrays, err := ReadFile(f.path)
			if err != nil {
				log.Warn("Could not load or parse file, skipping", "path", f.path, "error", err)
				res.Skipped = append(res.Skipped, f.path)
				continue
			}
			res.Inputs = append(res.Inputs, f.path)
			res.Arrays += len(arrays)
			for _, a := range arrays {
				res.Messages += len(a)
			}
			batches = append(batches, arrays...)
		}
		if len(res.Inputs) == 0 {
			results = append(results, res)
			continue
		}

		merged := Merge(batches...)
		if err := writeCompressed(res.Output, merged, opts.Compression); err != nil {
			return results, err
		}
		res.Written = len(merged)
		log.Info("Finished compacting group", "output", res.Output, "files", len(res.Inputs), "messages", res.Written)
		results = append(results, res)
	}
	log.Info("Compaction finished", "groups", len(results))
	return results, nil
}
