package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dreamware/primegrid/internal/config"
	"github.com/dreamware/primegrid/internal/diagram"
	"github.com/dreamware/primegrid/internal/storage"
)

func diagramsCmd(cfgFile *string) *cobra.Command {
	var (
		historyPath string
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "diagrams",
		Short: "Render the statistics history as an HTML page",
		Long: `Reads the history log written by the coordinator and renders six line
charts into a single HTML page. Without --history the log is taken from
storage.dir of the loaded configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if historyPath == "" {
				cfg, err := config.Load(*cfgFile)
				if err != nil {
					return err
				}
				historyPath = filepath.Join(cfg.Storage.Dir, storage.HistoryFileName)
			}
			return renderDiagrams(historyPath, outPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&historyPath, "history", "", "history log to read")
	cmd.Flags().StringVarP(&outPath, "out", "o", "primegrid-diagrams.html", `output file, "-" for stdout`)
	return cmd
}

func renderDiagrams(historyPath, outPath string, stdout io.Writer) error {
	in, err := os.Open(historyPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer in.Close()

	if outPath == "-" {
		return diagram.RenderJSON(stdout, in)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := diagram.RenderJSON(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", outPath)
	return nil
}
