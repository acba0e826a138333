package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"feple/internal/config"
	"feple/internal/logging"
)

var configFlag string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "feple",
		Short: "Consultation quality classification pipeline",
		Long: "feple watches a directory for consultation transcript fragments,\n" +
			"merges them per session, classifies consultation quality, and\n" +
			"accumulates one result per session.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file")

	root.AddCommand(
		newRunCommand(),
		newProcessCommand(),
		newResultsCommand(),
		newReportCommand(),
		newConfigCommand(),
	)
	return root
}

// loadConfig resolves configuration for subcommands using the shared flag.
func loadConfig() (*config.Config, error) {
	cfg, _, _, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// cliLogger builds a console logger for interactive commands. File output is
// left to the daemon.
func cliLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: "console",
	})
}
