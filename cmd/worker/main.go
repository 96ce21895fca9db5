// Package main provides the primegrid-worker binary, a command line worker
// that searches batches handed out by a PrimeGrid coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/primegrid/internal/version"
)

const defaultServer = "http://localhost:5000"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string

	rootCmd := &cobra.Command{
		Use:   "primegrid-worker",
		Short: "Search batches of integers for primes on behalf of a PrimeGrid coordinator",
		Long: `primegrid-worker repeatedly requests a batch from the coordinator, sieves it
and reports the primes it found.

Commands:
  run          Process batches until interrupted or --batches is reached
  stats        Show the coordinator's live statistics
  leaderboard  Show the top users`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "coordinator base URL")

	rootCmd.AddCommand(runCmd(&serverURL))
	rootCmd.AddCommand(statsCmd(&serverURL))
	rootCmd.AddCommand(leaderboardCmd(&serverURL))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String("primegrid-worker"))
		},
	})
	return rootCmd
}
