package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"feple/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigNewCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, found, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			if found {
				fmt.Println("# loaded from", path)
			} else {
				fmt.Println("# no config file found, showing defaults")
			}
			encoder := toml.NewEncoder(os.Stdout)
			encoder.SetIndentTables(true)
			return encoder.Encode(cfg)
		},
	}
}

func newConfigNewCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "new [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}
			if _, statErr := os.Stat(expanded); statErr == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", expanded)
			}
			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Println("wrote", expanded)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
