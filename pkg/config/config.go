// Package config loads tidetrawler settings from a TOML file.
//
// The file lives at $XDG_CONFIG_HOME/tidetrawler/config.toml (or
// ~/.config/tidetrawler/config.toml). Every key is optional:
//
//	cache_dir      = "/var/cache/tidetrawler"
//	http_timeout   = "10s"
//	search_max_age = "24h"   # 0 serves cached searches of any age
//	sweep_max_age  = "168h"
//	retries        = 3
//	registries     = ["crates", "npm", "pypi"]
//
//	[crates]
//	api_url   = "https://crates.io/api/v1"
//	index_url = "https://index.crates.io"
//
//	[npm]
//	registry_url = "https://registry.npmjs.org"
//
//	[pypi]
//	api_url = "https://pypi.org/pypi"
//
//	[server]
//	addr = "127.0.0.1:8080"
//
// TIDETRAWLER_CONFIG selects another file and TIDETRAWLER_CACHE_DIR
// overrides cache_dir.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tidetrawler/tidetrawler/pkg/cache"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/integrations/crates"
	"github.com/tidetrawler/tidetrawler/pkg/integrations/npm"
	"github.com/tidetrawler/tidetrawler/pkg/integrations/pypi"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

// Environment variables consulted by [Load].
const (
	EnvConfig   = "TIDETRAWLER_CONFIG"
	EnvCacheDir = "TIDETRAWLER_CACHE_DIR"
)

// Defaults.
const (
	DefaultHTTPTimeout = 10 * time.Second
	DefaultSweepMaxAge = 7 * 24 * time.Hour
	DefaultRetries     = 3
	DefaultRetryDelay  = time.Second
	DefaultServerAddr  = "127.0.0.1:8080"
)

// Config holds all tidetrawler settings.
type Config struct {
	CacheDir     string        `toml:"cache_dir"`
	UserAgent    string        `toml:"user_agent"`
	HTTPTimeout  time.Duration `toml:"http_timeout"`
	SearchMaxAge time.Duration `toml:"search_max_age"`
	SweepMaxAge  time.Duration `toml:"sweep_max_age"`
	Retries      int           `toml:"retries"`
	RetryDelay   time.Duration `toml:"retry_delay"`
	Concurrency  int           `toml:"concurrency"`
	Registries   []string      `toml:"registries"`

	Crates CratesConfig `toml:"crates"`
	Npm    NpmConfig    `toml:"npm"`
	PyPI   PyPIConfig   `toml:"pypi"`
	Server ServerConfig `toml:"server"`
}

// CratesConfig holds crates.io endpoints.
type CratesConfig struct {
	APIURL   string `toml:"api_url"`
	IndexURL string `toml:"index_url"`
}

// NpmConfig holds npm registry endpoints.
type NpmConfig struct {
	RegistryURL string `toml:"registry_url"`
}

// PyPIConfig holds PyPI endpoints.
type PyPIConfig struct {
	APIURL string `toml:"api_url"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
// CacheDir is left empty and resolved by [Config.ResolveCacheDir].
func Default() Config {
	return Config{
		HTTPTimeout: DefaultHTTPTimeout,
		SweepMaxAge: DefaultSweepMaxAge,
		Retries:     DefaultRetries,
		RetryDelay:  DefaultRetryDelay,
		Registries:  []string{"crates", "npm", "pypi"},
		Crates: CratesConfig{
			APIURL:   crates.DefaultAPIURL,
			IndexURL: crates.DefaultIndexURL,
		},
		Npm:    NpmConfig{RegistryURL: npm.DefaultRegistryURL},
		PyPI:   PyPIConfig{APIURL: pypi.DefaultAPIURL},
		Server: ServerConfig{Addr: DefaultServerAddr},
	}
}

// DefaultPath returns the config file location, honoring XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir, err = xdg, nil
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cache.AppName, "config.toml"), nil
}

// Load reads the configuration at path on top of [Default].
//
// An empty path falls back to $TIDETRAWLER_CONFIG and then [DefaultPath];
// only in that case is a missing file treated as "use defaults". Unknown
// keys and invalid values are INVALID_CONFIG errors.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvConfig); env != "" {
			path, explicit = env, true
		} else if p, err := DefaultPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			cfg = Default()
		case err != nil:
			return Config{}, tterrors.Wrap(tterrors.ErrCodeInvalidConfig, err, "read config %s", path)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				sort.Strings(keys)
				return Config{}, tterrors.New(tterrors.ErrCodeInvalidConfig,
					"unknown keys in %s: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	if dir := os.Getenv(EnvCacheDir); dir != "" {
		cfg.CacheDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges, registry names and endpoint URLs.
func (c Config) Validate() error {
	durations := []struct {
		key string
		val time.Duration
	}{
		{"http_timeout", c.HTTPTimeout},
		{"search_max_age", c.SearchMaxAge},
		{"sweep_max_age", c.SweepMaxAge},
		{"retry_delay", c.RetryDelay},
	}
	for _, d := range durations {
		if d.val < 0 {
			return tterrors.New(tterrors.ErrCodeInvalidConfig, "%s cannot be negative (got %s)", d.key, d.val)
		}
	}
	if c.Retries < 0 {
		return tterrors.New(tterrors.ErrCodeInvalidConfig, "retries cannot be negative (got %d)", c.Retries)
	}
	if c.Concurrency < 0 {
		return tterrors.New(tterrors.ErrCodeInvalidConfig, "concurrency cannot be negative (got %d)", c.Concurrency)
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}

	urls := []struct {
		key string
		val string
	}{
		{"crates.api_url", c.Crates.APIURL},
		{"crates.index_url", c.Crates.IndexURL},
		{"npm.registry_url", c.Npm.RegistryURL},
		{"pypi.api_url", c.PyPI.APIURL},
	}
	for _, u := range urls {
		if u.val == "" {
			continue
		}
		if err := tterrors.ValidateURL(u.val); err != nil {
			return tterrors.Wrap(tterrors.ErrCodeInvalidConfig, err, "%s", u.key)
		}
	}
	return nil
}

// Kinds resolves the configured registry names, dropping duplicates.
// An empty list selects every registry.
func (c Config) Kinds() ([]registry.SourceKind, error) {
	if len(c.Registries) == 0 {
		return registry.AllSourceKinds, nil
	}
	seen := make(map[registry.SourceKind]bool)
	var kinds []registry.SourceKind
	for _, name := range c.Registries {
		k, err := registry.ParseSourceKind(name)
		if err != nil {
			return nil, tterrors.Wrap(tterrors.ErrCodeInvalidConfig, err, "registries")
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// ResolveCacheDir returns CacheDir, or [cache.DefaultDir] when it is unset.
// A leading "~/" is expanded to the home directory.
func (c Config) ResolveCacheDir() (string, error) {
	dir := c.CacheDir
	if dir == "" {
		return cache.DefaultDir()
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, rest)
	}
	return dir, nil
}
