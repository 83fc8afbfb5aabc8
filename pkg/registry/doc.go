// Package registry defines the uniform package model shared by every
// registry client and the [Registry] interface they implement.
//
// # Package Model
//
// A [Package] is one search hit or one published release, normalized across
// registries:
//
//	{
//	  "name": "serde",
//	  "url": "https://crates.io/crates/serde",
//	  "source_kind": "Crates",
//	  "extra_metadata": {"max_version": "1.0.210", "downloads": 500000000}
//	}
//
// Registry-specific fields go into [Metadata], keeping their JSON types
// (strings, numbers as json.Number, booleans, arrays, objects). Nulls and
// empty strings are dropped so the output only carries what the registry
// actually reported.
//
// # Capabilities
//
// Not every registry supports every operation. [Registry.Capabilities] tells
// callers up front; calling an unsupported operation anyway returns an
// UNSUPPORTED error from [github.com/tidetrawler/tidetrawler/pkg/errors].
package registry
