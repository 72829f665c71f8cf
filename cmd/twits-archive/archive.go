package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"twits-archive-tool/internal/blobstore"
	"twits-archive-tool/internal/chunkfile"
	"twits-archive-tool/internal/collector"
	"twits-archive-tool/internal/config"
)

func addNamingFlags(cmd *cobra.Command) {
	cmd.Flags().String("prefix", collector.DefaultFilenamePrefix, "Chunk filename prefix")
	cmd.Flags().String("suffix", collector.DefaultFilenameSuffix, "Chunk filename suffix")
}

func naming(cmd *cobra.Command) chunkfile.Naming {
	prefix, _ := cmd.Flags().GetString("prefix")
	suffix, _ := cmd.Flags().GetString("suffix")
	return chunkfile.Naming{Prefix: prefix, Suffix: suffix}
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report missing chunk files and per-file statistics for a date range.",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Executing 'report' command")
			inputDir, _ := cmd.Flags().GetString("input-dir")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			chunk, _ := cmd.Flags().GetString("chunk")

			from, err := config.ParseAnchor(fromFlag)
			if err != nil {
				return err
			}
			to, err := config.ParseAnchor(toFlag)
			if err != nil {
				return err
			}
			g, err := collector.ParseGranularity(chunk)
			if err != nil {
				return err
			}
			rep, err := chunkfile.BuildReport(chunkfile.ReportOptions{
				Dir:         inputDir,
				Naming:      naming(cmd),
				Granularity: g,
				From:        from,
				To:          to,
				Log:         slog.Default(),
			})
			if err != nil {
				return err
			}
			printReport(cmd, rep)
			return nil
		},
	}
	cmd.Flags().String("input-dir", "", "Directory containing the chunk files (required)")
	cmd.MarkFlagRequired("input-dir")
	cmd.Flags().String("from", "", "First chunk date, inclusive (required)")
	cmd.MarkFlagRequired("from")
	cmd.Flags().String("to", "", "Last chunk date, inclusive (required)")
	cmd.MarkFlagRequired("to")
	cmd.Flags().String("chunk", "day", "Chunk granularity (day, week, month)")
	addNamingFlags(cmd)
	return cmd
}

func printReport(cmd *cobra.Command, rep chunkfile.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n📊 Summary Report")
	fmt.Fprintf(out, "Expected Chunks: %d\n", rep.Expected)
	fmt.Fprintf(out, "Missing Files (%d): %v\n", len(rep.Missing), rep.Missing)
	for _, st := range rep.Files {
		if st.Err != nil {
			fmt.Fprintf(out, "%s: error: %v\n", st.Path, st.Err)
			continue
		}
		fmt.Fprintf(out, "%s: arrays=%d messages=%d unique=%d duplicates=%d outside_chunk=%d ids=%d..%d span=%s..%s\n",
			st.Path, st.Arrays, st.Messages, st.Unique, st.Duplicates, st.OutsideChunk,
			st.LowID, st.HighID, st.Oldest.Format(time.DateTime), st.Newest.Format(time.DateTime))
	}
}

func newCompactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Merge chunk files into deduplicated, compressed files per group.",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Executing 'compact' command")
			inputDir, _ := cmd.Flags().GetString("input-dir")
			outputDir, _ := cmd.Flags().GetString("output-dir")
			group, _ := cmd.Flags().GetString("group")
			compression, _ := cmd.Flags().GetString("output-compression")

			g, err := collector.ParseGranularity(group)
			if err != nil {
				return err
			}
			c, err := chunkfile.ParseCompression(compression)
			if err != nil {
				return err
			}
			results, err := chunkfile.Compact(cmd.Context(), chunkfile.CompactOptions{
				InputDir:    inputDir,
				OutputDir:   outputDir,
				Naming:      naming(cmd),
				Group:       g,
				Compression: c,
				Log:         slog.Default(),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%s: inputs=%d skipped=%d messages=%d written=%d\n",
					r.Output, len(r.Inputs), len(r.Skipped), r.Messages, r.Written)
			}
			return nil
		},
	}
	cmd.Flags().String("input-dir", "", "Directory containing the chunk files (required)")
	cmd.MarkFlagRequired("input-dir")
	cmd.Flags().String("output-dir", "", "Directory for compacted files. Defaults to the input directory")
	cmd.Flags().String("group", "month", "Output chunk width (day, week, month)")
	cmd.Flags().String("output-compression", "", "Output compression format (none, gzip, zstd, lz4) (required)")
	cmd.MarkFlagRequired("output-compression")
	addNamingFlags(cmd)
	return cmd
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a directory to an Azure Blob Storage container.",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Executing 'upload' command")
			f := cmd.Flags()
			cfg := config.Default()
			if path, _ := f.GetString("config"); path != "" {
				var err error
				if cfg, err = config.LoadFile(path); err != nil {
					return err
				}
			}
			cfg.ApplyEnv(os.Getenv)
			override(f, "storage-account-name", f.GetString, &cfg.Azure.Account)
			override(f, "blob-container-name", f.GetString, &cfg.Azure.Container)
			override(f, "access-key", f.GetString, &cfg.Azure.AccessKey)
			override(f, "service-url", f.GetString, &cfg.Azure.ServiceURL)
			override(f, "blob-prefix", f.GetString, &cfg.Azure.Prefix)
			if err := cfg.Validate(); err != nil {
				return err
			}

			var missing []string
			if cfg.Azure.Account == "" {
				missing = append(missing, "storage-account-name")
			}
			if cfg.Azure.Container == "" {
				missing = append(missing, "blob-container-name")
			}
			if cfg.Azure.AccessKey == "" {
				missing = append(missing, "access-key")
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing Azure settings: %s", strings.Join(missing, ", "))
			}

			inputDir, _ := f.GetString("input-dir")
			chunksOnly, _ := f.GetBool("chunks-only")
			az, err := blobstore.NewAzure(cfg.Azure.Account, cfg.Azure.AccessKey, cfg.Azure.ServiceURL)
			if err != nil {
				return err
			}
			opts := blobstore.Options{
				Dir:       inputDir,
				Container: cfg.Azure.Container,
				Prefix:    cfg.Azure.Prefix,
				Log:       slog.Default(),
			}
			if chunksOnly {
				n := naming(cmd)
				opts.Match = func(name string) bool {
					_, _, ok := n.Parse(name)
					return ok
				}
			}
			res, err := blobstore.UploadDir(cmd.Context(), az, opts)
			if err != nil {
				return err
			}
			return res.Err()
		},
	}
	cmd.Flags().String("config", "", "YAML configuration file")
	cmd.Flags().String("input-dir", "", "Directory containing the files to upload (required)")
	cmd.MarkFlagRequired("input-dir")
	cmd.Flags().String("storage-account-name", "", "Azure Storage account name (env "+config.EnvAzureAccount+")")
	cmd.Flags().String("blob-container-name", "", "Azure Blob Storage container name")
	cmd.Flags().String("access-key", "", "Azure Storage account access key (env "+config.EnvAzureKey+")")
	cmd.Flags().String("service-url", "", "Blob service URL. Defaults to the public endpoint of the account")
	cmd.Flags().String("blob-prefix", "", "Prefix prepended to every blob name")
	cmd.Flags().Bool("chunks-only", false, "Upload only files named like chunk files")
	addNamingFlags(cmd)
	return cmd
}
