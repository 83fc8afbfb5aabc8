// Package cli implements the tidetrawler command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tidetrawler/tidetrawler/pkg/aggregate"
	"github.com/tidetrawler/tidetrawler/pkg/buildinfo"
	"github.com/tidetrawler/tidetrawler/pkg/cache"
	"github.com/tidetrawler/tidetrawler/pkg/config"
	"github.com/tidetrawler/tidetrawler/pkg/integrations"
	"github.com/tidetrawler/tidetrawler/pkg/integrations/crates"
	"github.com/tidetrawler/tidetrawler/pkg/integrations/npm"
	"github.com/tidetrawler/tidetrawler/pkg/integrations/pypi"
	"github.com/tidetrawler/tidetrawler/pkg/observability"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = cache.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Persistent flags.
	configPath string
	cacheDir   string
	noCache    bool
	refresh    bool
	registries []string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
// Arguments given to the root command itself are joined into a search query,
// so "tidetrawler serde json" is the same as "tidetrawler search serde json".
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName + " [query]",
		Short: "Tidetrawler searches package registries",
		Long: `Tidetrawler searches crates.io, npm and PyPI and prints the results as one
JSON array. Registry responses are cached on disk.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.Logger.GetLevel() <= LogDebug {
				registerDebugHooks(c.Logger)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return c.runSearch(cmd, args)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/tidetrawler/config.toml)")
	flags.StringVar(&c.cacheDir, "cache-dir", "", "cache directory (overrides cache_dir)")
	flags.BoolVar(&c.noCache, "no-cache", false, "disable the response cache")
	flags.BoolVar(&c.refresh, "refresh", false, "ignore cached responses but store fresh ones")
	flags.StringSliceVarP(&c.registries, "registry", "r", nil, "registries to query (crates, npm, pypi)")
	_ = root.RegisterFlagCompletionFunc("registry", completeRegistries)

	root.AddCommand(c.searchCommand())
	root.AddCommand(c.packageCommand())
	root.AddCommand(c.registriesCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Setup
// =============================================================================

// loadConfig reads the config file and applies flag overrides.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.cacheDir != "" {
		cfg.CacheDir = c.cacheDir
	}
	if len(c.registries) > 0 {
		cfg.Registries = c.registries
		if _, err := cfg.Kinds(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// openStore opens the cache store, or returns nil when caching is disabled.
func (c *CLI) openStore(cfg config.Config) (*cache.Store, error) {
	if c.noCache {
		return nil, nil
	}
	dir, err := cfg.ResolveCacheDir()
	if err != nil {
		return nil, err
	}
	return cache.NewStore(dir, cache.WithLogger(c.Logger))
}

// newRegistries builds one client per configured registry, all sharing store.
func (c *CLI) newRegistries(cfg config.Config, store *cache.Store) ([]registry.Registry, error) {
	kinds, err := cfg.Kinds()
	if err != nil {
		return nil, err
	}

	base := integrations.Options{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
		Logger:    c.Logger,
		MaxAge:    cfg.SearchMaxAge,
		Refresh:   c.refresh,
	}

	regs := make([]registry.Registry, 0, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case registry.Crates:
			regs = append(regs, crates.NewClient(store, crates.Options{
				Options:  base,
				APIURL:   cfg.Crates.APIURL,
				IndexURL: cfg.Crates.IndexURL,
			}))
		case registry.Npm:
			regs = append(regs, npm.NewClient(store, npm.Options{
				Options:     base,
				RegistryURL: cfg.Npm.RegistryURL,
			}))
		case registry.PyPi:
			regs = append(regs, pypi.NewClient(store, pypi.Options{
				Options: base,
				APIURL:  cfg.PyPI.APIURL,
			}))
		}
	}
	return regs, nil
}

// env is everything a registry command needs.
type env struct {
	cfg   config.Config
	store *cache.Store
	agg   *aggregate.Aggregator
}

// setup loads config, opens the store and builds the aggregator.
func (c *CLI) setup() (*env, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore(cfg)
	if err != nil {
		return nil, err
	}
	regs, err := c.newRegistries(cfg, store)
	if err != nil {
		return nil, err
	}
	agg := aggregate.New(regs,
		aggregate.WithLogger(c.Logger),
		aggregate.WithConcurrency(cfg.Concurrency),
		aggregate.WithRetry(cfg.Retries, cfg.RetryDelay),
	)
	return &env{cfg: cfg, store: store, agg: agg}, nil
}

// registerDebugHooks logs cache and HTTP events at debug level.
func registerDebugHooks(l *log.Logger) {
	h := debugHooks{logger: l}
	observability.SetCacheHooks(h)
	observability.SetHTTPHooks(h)
}
