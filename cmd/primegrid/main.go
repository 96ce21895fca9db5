// Package main provides the primegrid coordinator binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/primegrid/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "primegrid",
		Short: "PrimeGrid distributed prime search coordinator",
		Long: `PrimeGrid hands out disjoint batches of integers to workers, collects the
primes they find and keeps global statistics across restarts.

Commands:
  serve      Run the coordinator HTTP server
  diagrams   Render the statistics history as an HTML page`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./primegrid.yaml or /etc/primegrid/primegrid.yaml)")

	rootCmd.AddCommand(serveCmd(&cfgFile))
	rootCmd.AddCommand(diagramsCmd(&cfgFile))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String("primegrid"))
		},
	}
}
