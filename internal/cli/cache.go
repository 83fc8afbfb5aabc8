package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidetrawler/tidetrawler/pkg/cache"
	"github.com/tidetrawler/tidetrawler/pkg/config"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry response cache",
	}

	cmd.AddCommand(c.cacheSweepCommand())
	cmd.AddCommand(c.cacheShowCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheUpdateCommand())

	return cmd
}

// requireStore opens the store and fails when caching is disabled.
func (c *CLI) requireStore(cfg config.Config) (*cache.Store, error) {
	if c.noCache {
		return nil, tterrors.New(tterrors.ErrCodeInvalidInput, "cache commands cannot run with --no-cache")
	}
	return c.openStore(cfg)
}

// cacheSweepCommand creates the "cache sweep" subcommand.
func (c *CLI) cacheSweepCommand() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired and corrupt cache records",
		Long: `Scan the cache directory, delete records older than --max-age and files
that cannot be decoded, and report what is left. Unrecognized files are
listed and left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := c.requireStore(cfg)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.SweepMaxAge
			}

			prog := newProgress(loggerFromContext(cmd.Context()))
			stats, err := store.Sweep(maxAge)
			if err != nil {
				return err
			}
			prog.done("Swept cache")

			printSuccess("Kept %d cached entries", stats.Kept)
			printKeyValue("expired", fmt.Sprint(stats.Expired))
			printKeyValue("corrupt", fmt.Sprint(stats.Corrupt))
			printKeyValue("skipped", fmt.Sprint(stats.Skipped))
			printDetail("Directory: %s", store.Dir())
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "maximum record age (default sweep_max_age; 0 keeps all)")
	return cmd
}

// cacheShowCommand creates the "cache show" subcommand.
func (c *CLI) cacheShowCommand() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "show <url>",
		Short: "Print the cached record for a URL as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := c.requireStore(cfg)
			if err != nil {
				return err
			}

			rec, ok := store.Lookup(args[0], cache.LookupOptions{MaxAge: maxAge})
			if !ok {
				return tterrors.New(tterrors.ErrCodeNotFound, "no live cache record for %s", args[0])
			}
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "treat older records as missing (0 accepts any age)")
	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached registry responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := c.requireStore(cfg)
			if err != nil {
				return err
			}

			count, err := store.Clear()
			if err != nil {
				return err
			}
			if count == 0 {
				printInfo("Cache is empty")
				return nil
			}
			printSuccess("Cleared %d cached entries", count)
			printDetail("Directory: %s", store.Dir())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			dir, err := cfg.ResolveCacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), dir)
			return err
		},
	}
}

// cacheUpdateCommand creates the "cache update" subcommand.
func (c *CLI) cacheUpdateCommand() *cobra.Command {
	var minAge time.Duration

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh registry-wide cached data",
		Long: `Ask each configured registry to refresh the data it keeps in its cache
namespace. Registries without cache updates are reported and skipped.

--min-age is passed to every registry. None of the built-in registries
keeps registry-wide data yet, so they all ignore it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := c.requireStore(cfg)
			if err != nil {
				return err
			}
			regs, err := c.newRegistries(cfg, store)
			if err != nil {
				return err
			}

			var errs []error
			for _, r := range regs {
				name := r.Kind().Slug()
				spinner := newSpinner(cmd.Context(), cmd.ErrOrStderr(), fmt.Sprintf("Updating %s cache...", name))
				spinner.Start()
				err := r.UpdateCache(cmd.Context(), minAge)
				switch {
				case err == nil:
					spinner.StopWithSuccess(fmt.Sprintf("Updated %s cache", name))
				case tterrors.IsUnsupported(err):
					spinner.Stop()
					printWarning("%s: %s", name, tterrors.UserMessage(err))
				default:
					spinner.StopWithError(fmt.Sprintf("%s: %s", name, tterrors.UserMessage(err)))
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().DurationVar(&minAge, "min-age", 0, "only refresh data older than this (ignored by the built-in registries)")
	return cmd
}
