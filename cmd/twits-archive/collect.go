package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"twits-archive-tool/internal/chunkfile"
	"twits-archive-tool/internal/collector"
	"twits-archive-tool/internal/config"
	"twits-archive-tool/internal/ledger"
	"twits-archive-tool/internal/metrics"
	"twits-archive-tool/internal/stocktwits"
)

// addCollectionFlags registers the request flags shared by collect and
// history. Only flags the user sets override the config file.
func addCollectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "YAML configuration file")
	f.StringSlice("symbols", nil, "Comma-separated symbols to collect")
	f.StringSlice("users", nil, "Comma-separated users to collect")
	f.Bool("only-combo", false, "Keep only messages from the users that mention one of the symbols")
	f.Int64("since-id", 0, "Lower exclusive message id bound")
	f.Int64("max-id", 0, "Upper inclusive message id bound to start from")
	f.Int("limit", collector.DefaultLimit, "Page size per request")
	f.String("anchor", "", "Start anchor (2006-01-02 or 2006-01-02T15:04:05Z). Defaults to the current chunk")
	f.String("chunk", "day", "Chunk granularity (day, week, month)")
	f.String("prefix", collector.DefaultFilenamePrefix, "Chunk filename prefix")
	f.String("suffix", collector.DefaultFilenameSuffix, "Chunk filename suffix")
	f.Bool("verbose", false, "Log walk progress at info level")
	f.Int("concurrency", 1, "Entities fetched in parallel per page")
	f.String("api-url", "", "Stocktwits API base URL (env "+config.EnvAPIURL+")")
	f.Int("requests-per-hour", 0, "Client-side request throttle, 0 disables")
}

// loadConfig merges defaults, the optional config file, the environment and
// explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	cfg := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(os.Getenv)

	override(f, "symbols", f.GetStringSlice, &cfg.Collect.Symbols)
	override(f, "users", f.GetStringSlice, &cfg.Collect.Users)
	override(f, "only-combo", f.GetBool, &cfg.Collect.OnlyCombo)
	override(f, "since-id", f.GetInt64, &cfg.Collect.SinceID)
	override(f, "max-id", f.GetInt64, &cfg.Collect.MaxID)
	override(f, "limit", f.GetInt, &cfg.Collect.Limit)
	override(f, "anchor", f.GetString, &cfg.Collect.Anchor)
	override(f, "chunk", f.GetString, &cfg.Collect.Chunk)
	override(f, "prefix", f.GetString, &cfg.Collect.Prefix)
	override(f, "suffix", f.GetString, &cfg.Collect.Suffix)
	override(f, "verbose", f.GetBool, &cfg.Collect.Verbose)
	override(f, "concurrency", f.GetInt, &cfg.Collect.Concurrency)
	override(f, "api-url", f.GetString, &cfg.API.URL)
	override(f, "requests-per-hour", f.GetInt, &cfg.API.RequestsPerHour)
	override(f, "out", f.GetString, &cfg.Output.Dir)
	override(f, "merge", f.GetBool, &cfg.Output.Merge)
	override(f, "ledger", f.GetString, &cfg.Output.Ledger)
	override(f, "metrics-file", f.GetString, &cfg.Output.MetricsFile)

	if !f.Changed("log-level") && cfg.LogLevel != "" {
		if err := installLogger(cmd, cfg.LogLevel); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// override copies a flag into dst when the command defines it and the user
// set it.
func override[T any](f *pflag.FlagSet, name string, get func(string) (T, error), dst *T) {
	if f.Lookup(name) == nil || !f.Changed(name) {
		return
	}
	if v, err := get(name); err == nil {
		*dst = v
	}
}

func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Walk the streams backward and write one file per chunk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Executing 'collect' command")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sinceLast, _ := cmd.Flags().GetBool("since-last")
			return runCollect(cmd.Context(), cfg, sinceLast)
		},
	}
	addCollectionFlags(cmd)
	cmd.Flags().String("out", ".", "Directory for chunk files")
	cmd.Flags().Bool("merge", false, "Merge flushes into existing chunk files instead of appending arrays")
	cmd.Flags().String("ledger", "", "SQLite ledger recording runs and flushes")
	cmd.Flags().Bool("since-last", false, "Start from the highest id of the last completed run in the ledger")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	return cmd
}

func newSink(cfg config.Config, log *slog.Logger) (collector.Sink, error) {
	if cfg.Output.Merge {
		return chunkfile.NewMergeSink(cfg.Output.Dir, log)
	}
	return chunkfile.NewAppendSink(cfg.Output.Dir, log)
}

func runCollect(ctx context.Context, cfg config.Config, sinceLast bool) (err error) {
	log := slog.Default()
	req, err := cfg.Request()
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	sink, err := newSink(cfg, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	opts := []collector.Option{
		collector.WithLogger(log),
		collector.WithObserver(m),
		collector.WithConcurrency(cfg.Collect.Concurrency),
	}
	if cfg.Output.MetricsFile != "" {
		defer func() {
			if werr := m.WriteTextfile(cfg.Output.MetricsFile); werr != nil {
				err = errors.Join(err, werr)
			}
		}()
	}

	var run *ledger.Run
	if cfg.Output.Ledger != "" {
		lg, err := ledger.Open(cfg.Output.Ledger, ledger.WithLogger(log))
		if err != nil {
			return err
		}
		defer lg.Close()
		if sinceLast {
			hw, err := lg.HighWater(ctx)
			if err != nil {
				return err
			}
			if hw > req.SinceID {
				log.Info("Resuming above last completed run", "since_id", hw)
				req.SinceID = hw
			}
		}
		if run, err = lg.StartRun(ctx, req); err != nil {
			return err
		}
		opts = append(opts, collector.WithRecorder(run))
	} else if sinceLast {
		return errors.New("--since-last requires --ledger")
	}

	client := stocktwits.New(cfg.Client(), stocktwits.WithLogger(log))
	final, runErr := collector.New(client, sink, opts...).Collect(ctx, req)
	if run != nil {
		if ferr := run.Finish(context.WithoutCancel(ctx), final, runErr); ferr != nil {
			runErr = errors.Join(runErr, ferr)
		}
	}
	if runErr != nil {
		return runErr
	}
	log.Info("Collection finished", "final_anchor", stocktwits.FormatTime(final.Anchor), "final_max_id", final.MaxID)
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Run a single walk from the anchor and print the messages as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			req, err := cfg.Request()
			if err != nil {
				return err
			}
			client := stocktwits.New(cfg.Client(), stocktwits.WithLogger(slog.Default()))
			c := collector.New(client, nil,
				collector.WithLogger(slog.Default()),
				collector.WithConcurrency(cfg.Collect.Concurrency))
			msgs, err := c.History(cmd.Context(), req)
			if err != nil {
				return err
			}
			if msgs == nil {
				msgs = []stocktwits.Message{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(msgs); err != nil {
				return fmt.Errorf("write history: %w", err)
			}
			return nil
		},
	}
	addCollectionFlags(cmd)
	return cmd
}
