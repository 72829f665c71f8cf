package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"twits-archive-tool/internal/config"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "twits-archive",
		Short:         "A tool for archiving Stocktwits streams into chunk files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			return installLogger(cmd, logLevel)
		},
	}
	rootCmd.PersistentFlags().String("log-level", "info", "Set the logging level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newCollectCmd(),
		newHistoryCmd(),
		newReportCmd(),
		newCompactCmd(),
		newUploadCmd(),
		newSignalsCmd(),
		newLedgerCmd(),
	)
	return rootCmd
}

func installLogger(cmd *cobra.Command, level string) error {
	log, err := config.NewLogger(cmd.ErrOrStderr(), level)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("Command execution failed", "error", err)
		stop()
		os.Exit(1)
	}
}
