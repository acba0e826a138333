package main

import (
	"github.com/spf13/cobra"

	"feple/internal/daemonrun"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watcher daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonrun.Run(cmd.Context(), daemonrun.Options{ConfigPath: configFlag})
		},
	}
}
