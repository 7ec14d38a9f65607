package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stepback",
	Short: "Step-back balance ladder trading engine",
	Long: `Stepback runs a geometric balance ladder over a single instrument:
each winning trade advances the balance one rung (balance times the
growth factor) and each losing trade steps back exactly one rung through
a dynamically sized stop.

It provides:
  - A demo mode with a scripted quote sequence
  - Backtesting over CSV tick files and Dukascopy bi5 archives
  - A live mode fed by a websocket quote stream
  - An append-only journal (NDJSON or SQLite) the ladder can be rebuilt from
  - Optional Prometheus metrics`,
}

// Execute runs the root command tree.
func Execute() error {
	return rootCmd.Execute()
}
