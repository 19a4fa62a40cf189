package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/rawws/internal/config"
	"github.com/muurk/rawws/internal/ui"
)

// interactive reports whether prompts and spinners can be shown.
var interactive = ui.IsTerminal

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the server configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with default values",
		Example: `  # Write to the user config dir
  rawws-server config init

  # Write next to the binary, replacing any existing file
  rawws-server config init ./rawws.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPathArg(args)
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				if !interactive() {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Overwrite configuration",
					[]string{path + " already exists", "Every setting in it will be reset to its default"}, "yes") {
					return nil
				}
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("cannot access %s: %w", path, err)
			}

			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult("Configuration written",
				ui.Field{Key: "Path", Value: path},
			).Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file without asking")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration serve would start with before flag overrides.
A missing file shows the built-in defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(path)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "Path to configuration file (default: user config dir)")
	return cmd
}

func configPathArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return config.DefaultPath()
}
