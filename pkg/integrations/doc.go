// Package integrations provides HTTP clients for package registry APIs.
//
// # Overview
//
// Each registry has its own subpackage implementing
// [registry.Registry]:
//
//   - [crates]: Rust crates.io (search and sparse index)
//   - [npm]: Node Package Manager (search only)
//   - [pypi]: Python Package Index (package lookups only)
//
// # Shared Client
//
// [Client] holds what every registry needs: an HTTP client with the
// tidetrawler User-Agent, the shared [cache.Store], a logger, and the cache
// policy (max age and refresh). Registries call [Client.Cached] with the
// exact request URL and a parse function:
//
//	err := c.Cached(ctx, url, c.Cacheable(), func(body []byte) error {
//	    pkgs, err = parseSearch(body)
//	    return err
//	})
//
// The request URL, query string included, is the cache key, so the same
// query against the same registry always maps to the same cache file.
//
// # Errors
//
// Failures are coded errors from [tterrors]. A 404 is PACKAGE_NOT_FOUND and
// wraps [ErrNotFound]; transport failures are NETWORK_ERROR or TIMEOUT and
// wrap [ErrNetwork]. Transient failures additionally carry an
// [httputil.RetryableError] so callers can decide to retry. Clients never
// retry on their own.
//
// [crates]: github.com/tidetrawler/tidetrawler/pkg/integrations/crates
// [npm]: github.com/tidetrawler/tidetrawler/pkg/integrations/npm
// [pypi]: github.com/tidetrawler/tidetrawler/pkg/integrations/pypi
// [registry.Registry]: github.com/tidetrawler/tidetrawler/pkg/registry.Registry
// [cache.Store]: github.com/tidetrawler/tidetrawler/pkg/cache.Store
// [tterrors]: github.com/tidetrawler/tidetrawler/pkg/errors
// [httputil.RetryableError]: github.com/tidetrawler/tidetrawler/pkg/httputil.RetryableError
package integrations
