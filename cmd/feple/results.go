package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"feple/internal/results"
)

func newResultsCommand() *cobra.Command {
	var labelFilter string
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show accumulated classification results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := results.Open(cfg)
			if err != nil {
				return fmt.Errorf("open results store: %w", err)
			}
			defer store.Close()

			all, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			writer := table.NewWriter()
			writer.SetOutputMirror(os.Stdout)
			if isatty.IsTerminal(os.Stdout.Fd()) {
				writer.SetStyle(table.StyleRounded)
				writer.Style().Color.Header = text.Colors{text.Bold}
			} else {
				writer.SetStyle(table.StyleDefault)
			}
			writer.AppendHeader(table.Row{"SESSION", "LABEL", "CONFIDENCE", "SOURCE", "PROCESSED"})

			shown := 0
			for _, result := range all {
				if labelFilter != "" && result.Label != labelFilter {
					continue
				}
				writer.AppendRow(table.Row{
					result.SessionID,
					result.Label,
					fmt.Sprintf("%.4f", result.Confidence),
					string(result.SourceKind),
					result.ProcessedAt.Local().Format(time.DateTime),
				})
				shown++
			}
			if shown == 0 {
				fmt.Println("no results")
				return nil
			}
			writer.Render()
			fmt.Printf("%d of %d sessions\n", shown, len(all))
			return nil
		},
	}
	cmd.Flags().StringVar(&labelFilter, "label", "", "only show sessions with this label")
	return cmd
}
