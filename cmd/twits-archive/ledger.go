package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"twits-archive-tool/internal/ledger"
	"twits-archive-tool/internal/stocktwits"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect recorded collection runs.",
	}
	cmd.PersistentFlags().String("ledger", "", "SQLite ledger file (required)")
	cmd.MarkPersistentFlagRequired("ledger")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List runs, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer lg.Close()
			limit, _ := cmd.Flags().GetInt("limit")
			infos, err := lg.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tFLUSHES\tWRITTEN\tFINAL ANCHOR\tFINAL MAX ID\tERROR")
			for _, r := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%d\t%s\n",
					r.ID, stamp(r.StartedAt), r.Status, r.Flushes, r.Written,
					stamp(r.FinalAnchor), r.FinalMaxID, r.Error)
			}
			return tw.Flush()
		},
	}
	runs.Flags().Int("limit", 20, "Maximum number of runs to list")

	flushes := &cobra.Command{
		Use:   "flushes <run-id>",
		Short: "List the flushes of one run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer lg.Close()
			if _, err := lg.Run(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			infos, err := lg.Flushes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tFILE\tCHUNK\tNEXT ANCHOR\tNEXT MAX ID\tMESSAGES\tWRITTEN\tIDS")
			for _, f := range infos {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d..%d\n",
					f.Seq, f.Filename, stamp(f.ChunkAnchor), stamp(f.NextAnchor), f.NextMaxID,
					f.Messages, f.Written, f.LowID, f.HighID)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(runs, flushes)
	return cmd
}

func openLedger(cmd *cobra.Command) (*ledger.Ledger, error) {
	path, _ := cmd.Flags().GetString("ledger")
	return ledger.Open(path)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return stocktwits.FormatTime(t)
}
