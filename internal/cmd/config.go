package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/msageha/selfcal/internal/setup"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the selfcal configuration",
		Long: `Show or create the selfcal configuration.

Without a subcommand the effective configuration is printed: built-in
defaults, overridden by selfcal.yaml (or --config), overridden by
SELFCAL_<SECTION>_<KEY> environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return showConfig(a)
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init [dir]",
		Short:       "Write a default selfcal.yaml and create the parset directory",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path, err := setup.Run(dir, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing selfcal.yaml (the old file is kept as .bak)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return showConfig(a)
		},
	}, initCmd)
	return cmd
}

func showConfig(a *app) error {
	out, err := yaml.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = a.stdout.Write(out)
	return err
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the selfcal version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintf(a.stdout, "selfcal %s\n", a.version)
			return nil
		},
	}
}
