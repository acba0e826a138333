package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"feple/internal/report"
	"feple/internal/results"
)

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Write a summary snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := cliLogger(cfg)
			if err != nil {
				return err
			}
			store, err := results.Open(cfg)
			if err != nil {
				return fmt.Errorf("open results store: %w", err)
			}
			defer store.Close()

			reporter := report.New(cfg, store, logger)
			if err := reporter.Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("summary written to", filepath.Join(cfg.Paths.OutputDir, report.FileName))
			return nil
		},
	}
}
