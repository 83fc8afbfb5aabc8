// Package crates provides a registry client for crates.io, the Rust
// community's package registry.
//
// # Usage
//
//	client := crates.NewClient(store, crates.Options{})
//
//	hits, err := client.Search(ctx, "serde")      // web API, cached
//	versions, err := client.Package(ctx, "serde") // sparse index, live
//
// # Search
//
// [Client.Search] calls GET /api/v1/crates?q=<query>. Each crate object
// becomes a [registry.Package]: the URL is the crate's homepage (or its
// crates.io page when it has none) and every other field lands in the
// package metadata with its JSON type intact. crates.io does not report an
// owner in search results.
//
// # Sparse Index
//
// [Client.Package] reads the crate's file from the sparse index
// (https://index.crates.io). The file holds one JSON object per published
// version; each becomes a package whose metadata keeps the index keys as
// published (vers, cksum, yanked, deps, features, rust_version, ...). See
// [IndexPath] for the file layout.
//
// # User-Agent
//
// crates.io rejects anonymous API traffic, so every request carries the
// tidetrawler User-Agent.
//
// [registry.Package]: github.com/tidetrawler/tidetrawler/pkg/registry.Package
package crates
