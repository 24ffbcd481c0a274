package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// decayCmd runs one stale-edge decay pass.
var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run one stale-edge decay pass",
	Long: `Pull the weight of every stale graph edge toward neutral. Normally run
from cron or the embedding process's decay scheduler; this command exists
for manual maintenance and backfills.

Examples:
  wisdomd decay
  wisdomd decay --stale-after 168h`,
	Args: cobra.NoArgs,
	RunE: runDecay,
}

var staleAfterFlag string

func init() {
	decayCmd.Flags().StringVar(&staleAfterFlag, "stale-after", "", "override the staleness window (e.g. 168h)")
}

func runDecay(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.close()

	staleAfter := env.cfg.Graph.StaleAfter.Std()
	if staleAfterFlag != "" {
		parsed, err := time.ParseDuration(staleAfterFlag)
		if err != nil {
			return fmt.Errorf("invalid --stale-after: %w", err)
		}
		staleAfter = parsed
	}

	decayed, err := env.graph.DecayStaleEdges(cmd.Context(), staleAfter)
	if err != nil {
		return fmt.Errorf("decay pass: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "decayed %d edges (stale after %s)\n", decayed, staleAfter)
	return nil
}
