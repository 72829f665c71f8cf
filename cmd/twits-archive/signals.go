package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"twits-archive-tool/internal/chunkfile"
	"twits-archive-tool/internal/signals"
	"twits-archive-tool/internal/stocktwits"
)

func newSignalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals [file...]",
		Short: "Compute sentiment features from chunk files and write them as CSV.",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Executing 'signals' command")
			inputDir, _ := cmd.Flags().GetString("input-dir")
			output, _ := cmd.Flags().GetString("output")
			prefix, _ := cmd.Flags().GetString("column-prefix")
			spans, _ := cmd.Flags().GetIntSlice("ema-spans")

			paths := slices.Clone(args)
			if inputDir != "" {
				found, err := chunkPaths(inputDir, naming(cmd))
				if err != nil {
					return err
				}
				paths = append(paths, found...)
			}
			if len(paths) == 0 {
				return errors.New("no input files: pass files or --input-dir")
			}
			msgs, err := loadMessages(paths)
			if err != nil {
				return err
			}

			opts := signals.Options{Prefix: prefix, EMASpans: spans}
			rows, err := signals.Build(msgs, opts)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := signals.WriteCSV(w, rows, opts); err != nil {
				return err
			}
			slog.Info("Signals written", "rows", len(rows), "files", len(paths), "output", output)
			return nil
		},
	}
	cmd.Flags().String("input-dir", "", "Directory of chunk files to read")
	cmd.Flags().String("output", "", "CSV file to write. Defaults to stdout")
	cmd.Flags().String("column-prefix", signals.DefaultPrefix, "Prefix of the feature columns")
	cmd.Flags().IntSlice("ema-spans", signals.DefaultEMASpans, "EMA spans for the bull/bear ratios")
	addNamingFlags(cmd)
	return cmd
}

// chunkPaths lists the chunk files directly under dir in name order.
func chunkPaths(dir string, n chunkfile.Naming) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, ok := n.Parse(e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// loadMessages reads every file and merges the arrays by id.
func loadMessages(paths []string) ([]stocktwits.Message, error) {
	var batches [][]stocktwits.Message
	for _, p := range paths {
		arrays, err := chunkfile.ReadFile(p)
		if err != nil {
			return nil, err
		}
		batches = append(batches, arrays...)
	}
	return chunkfile.Merge(batches...), nil
}
