package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "An autonomous multi-wallet paper trading agent",
	Long: `Agent runs an autonomous trading loop over a set of logical wallets.

It provides tools for:
  - Executing strategy signals through a risk-gated pipeline
  - Declarative inter-wallet money flows (fee buffers, sweeps, compounding)
  - Durable JSONL trade logging with replay on restart
  - A queryable SQLite/CSV journal mirror
  - A read-only HTTP status surface with metrics and live events

Complete documentation is available at https://github.com/rustyeddy/agent`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
