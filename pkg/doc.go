// Package pkg provides the libraries behind tidetrawler, a package registry
// search tool.
//
// # Overview
//
// The pkg directory is organized into three areas:
//
//  1. Domain: [registry] (the normalized Package model and the Registry
//     interface) and [aggregate] (fan-out across registries)
//  2. Infrastructure: [cache] (URL-keyed response store), [httputil]
//     (transport and retry), [config], [errors], [observability]
//  3. Integrations: [integrations] and its crates, npm and pypi clients
//
// # Architecture
//
// A search flows through the layers like this:
//
//	aggregate.Search(query)
//	         ↓
//	registry client (crates, npm, pypi)
//	         ↓
//	cache.Store.Lookup ── hit ──→ parse cached content
//	         ↓ miss
//	HTTP fetch → parse → cache.Store.Save
//	         ↓
//	[]registry.Package
//
// # Quick Start
//
//	store, err := cache.NewStore(dir)
//	if err != nil {
//	    return err
//	}
//	regs := []registry.Registry{
//	    crates.NewClient(store, crates.Options{}),
//	    npm.NewClient(store, npm.Options{}),
//	    pypi.NewClient(store, pypi.Options{}),
//	}
//	res := aggregate.New(regs).Search(ctx, "serde")
//	fmt.Println(len(res.Packages), "packages")
//
// All registry clients share one [cache.Store]; see [cache.Store] for its
// locking and expiry rules.
package pkg
