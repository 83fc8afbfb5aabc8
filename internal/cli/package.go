package cli

import (
	"github.com/spf13/cobra"

	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
)

// packageCommand creates the package command.
func (c *CLI) packageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "package <name>",
		Short: "Look up a package by name",
		Long: `Look up one package in every configured registry that supports package
lookups and print what was found as a JSON array.

crates.io returns one entry per published version; PyPI returns the latest
release.`,
		Example: `  tidetrawler package requests --registry pypi
  tidetrawler package serde`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tterrors.ValidatePackageName(args[0]); err != nil {
				return err
			}
			e, err := c.setup()
			if err != nil {
				return err
			}
			return report(cmd, e.agg, e.agg.Package(cmd.Context(), args[0]))
		},
	}
}
