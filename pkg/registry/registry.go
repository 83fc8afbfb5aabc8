package registry

import (
	"context"
	"time"
)

// Capabilities reports which [Registry] operations are implemented.
type Capabilities struct {
	Search      bool `json:"search"`
	Package     bool `json:"package"`
	UpdateCache bool `json:"update_cache"`
	Cacheable   bool `json:"cacheable"`
}

// Registry is a package registry client.
//
// Implementations are safe for concurrent use. Operations the registry does
// not support return an UNSUPPORTED error; check [Registry.Capabilities]
// first to avoid the round trip.
type Registry interface {
	// Kind identifies the registry.
	Kind() SourceKind

	// Capabilities reports the supported operations.
	Capabilities() Capabilities

	// Cacheable reports whether responses are stored in the shared cache.
	Cacheable() bool

	// CacheNamespace is the cache subdirectory owned by this registry.
	CacheNamespace() string

	// Search returns packages matching query.
	Search(ctx context.Context, query string) ([]Package, error)

	// Package returns the published entries of one package.
	Package(ctx context.Context, name string) ([]Package, error)

	// UpdateCache refreshes registry-wide cached data older than minAge.
	UpdateCache(ctx context.Context, minAge time.Duration) error
}
