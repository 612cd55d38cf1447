// Command marketplace-ops runs one-off maintenance against the marketplace database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marketplace-ops",
		Short: "Operational tasks for the Bonyankop marketplace",
		Long: `marketplace-ops runs maintenance tasks outside the API process.

It reads the same environment (.env, DB_*, REDIS_*) as the API gateway.`,
		SilenceUsage: true,
	}
	root.AddCommand(newSweepCmd(), newRecomputeCmd())
	return root
}
