package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"feple/internal/analysis"
	"feple/internal/config"
	"feple/internal/fragment"
	"feple/internal/logging"
	"feple/internal/pipeline"
	"feple/internal/results"
	"feple/internal/session"
)

func newProcessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>...",
		Short: "Process fragment files synchronously",
		Long: "Process runs each file through the full pipeline and prints the\n" +
			"outcome. Reprocessing an already handled file is safe: the session\n" +
			"merge deduplicates and the accumulator keeps one row per session.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := cliLogger(cfg)
			if err != nil {
				return err
			}

			sessions, err := session.Open(cfg)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer sessions.Close()
			resultStore, err := results.Open(cfg)
			if err != nil {
				return fmt.Errorf("open results store: %w", err)
			}
			defer resultStore.Close()

			manager := pipeline.New(cfg, sessions, resultStore,
				analysis.NewKeywordExtractor(), analysis.NewLinearPredictor(), logger)

			failures := 0
			for _, path := range args {
				expanded, err := config.ExpandPath(path)
				if err != nil {
					return err
				}
				attempt := manager.Process(cmd.Context(), expanded)
				switch {
				case attempt.Kind == fragment.KindUnrecognized && attempt.Err == nil:
					fmt.Printf("%s: unrecognized, skipped\n", path)
				case errors.Is(attempt.Err, results.ErrStaleResult):
					fmt.Printf("%s: session %s already has a newer result\n", path, attempt.SessionID)
				case attempt.Err != nil:
					failures++
					fmt.Printf("%s: %s: %v\n", path, attempt.Status, attempt.Err)
				default:
					fmt.Printf("%s: session %s -> %s (%.4f)\n",
						path, attempt.SessionID, attempt.Result.Label, attempt.Result.Confidence)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d files failed", failures, len(args))
			}
			logger.Debug("process complete", logging.Int("files", len(args)))
			return nil
		},
	}
}
