package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defenseye",
		Short: "CMMC compliance analysis of security findings",
		Long: `DefensEye ingests security findings from a Supabase database or a CSV
export and derives a CMMC Level 2 compliance report, served over HTTP for
the dashboard or printed from the command line.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to defenseye config file")
	cmd.AddCommand(newServeCmd(), newAnalyzeCmd(), newChatCmd())
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
