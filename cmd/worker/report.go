package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dreamware/primegrid/internal/cluster"
)

func statsCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the coordinator's live statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cluster.NewClient(*serverURL)
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func leaderboardCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top users by numbers processed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cluster.NewClient(*serverURL)
			if err != nil {
				return err
			}
			board, err := client.Leaderboard(cmd.Context())
			if err != nil {
				return fmt.Errorf("get leaderboard: %w", err)
			}
			renderLeaderboard(cmd.OutOrStdout(), board)
			return nil
		},
	}
}

func renderStats(w io.Writer, s cluster.Stats) {
	lastUpdate := "never"
	if s.LastUpdate != nil {
		lastUpdate = *s.LastUpdate
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Primes found", humanize.Comma(int64(s.TotalPrimesFound))},
		{"Highest prime", humanize.Comma(int64(s.HighestPrimeFound))},
		{"Batches completed", humanize.Comma(int64(s.TotalBatchesCompleted))},
		{"Numbers processed", humanize.Comma(int64(s.TotalNumbersProcessed))},
		{"Active clients", strconv.FormatUint(uint64(s.ActiveClients), 10)},
		{"Total clients", strconv.FormatUint(s.TotalClients, 10)},
		{"Last update", lastUpdate},
	})
	fmt.Fprintln(w, tbl.Render())
}

func renderLeaderboard(w io.Writer, board []cluster.LeaderboardEntry) {
	if len(board) == 0 {
		fmt.Fprintln(w, "no registered users yet")
		return
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "User", "Numbers processed", "Primes found"})
	for i, e := range board {
		tbl.AppendRow(table.Row{
			i + 1,
			e.Username,
			humanize.Comma(int64(e.NumbersProcessed)),
			humanize.Comma(int64(e.PrimesFound)),
		})
	}
	fmt.Fprintln(w, tbl.Render())
}
