package cmd

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/stepbackfx/stepback/journal"
)

var replayCmd = &cobra.Command{
	Use:   "replay <journal.ndjson>",
	Short: "Rebuild the ladder from an NDJSON journal",
	Long: `Replay reads an NDJSON journal and reconstructs the balance ladder
from its ladder transitions, cross-checking every recorded balance along
the way. The journal is the source of truth; this verifies it.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var replayGrowth string

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayGrowth, "growth-factor", "1.30", "growth factor the journal was written with")
}

func runReplay(cmd *cobra.Command, args []string) error {
	growth, err := decimal.NewFromString(replayGrowth)
	if err != nil {
		return fmt.Errorf("bad --growth-factor %q: %w", replayGrowth, err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	lad, err := journal.Replay(f, growth)
	if err != nil {
		return err
	}

	fmt.Printf("Journal verified: %s\n", args[0])
	fmt.Printf("Balance:     %s\n", lad.Balance())
	fmt.Printf("Step index:  %d\n", lad.StepIndex())
	fmt.Printf("History:     %s\n", lad.History())
	fmt.Printf("Return:      %s%%\n", lad.TotalReturn().Mul(decimal.NewFromInt(100)).Round(2))
	return nil
}
