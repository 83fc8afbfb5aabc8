// Package pypi provides a registry client for the Python Package Index.
//
// # Overview
//
// This package fetches package metadata from PyPI's JSON API
// (https://pypi.org/pypi/<name>/json).
//
// # Usage
//
//	client := pypi.NewClient(store, pypi.Options{})
//
//	pkgs, err := client.Package(ctx, "fastapi")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(pkgs[0].Name, pkgs[0].Owner)
//
// # Package Mapping
//
// The response's info object becomes the package metadata, minus name and
// package_url which map to [registry.Package] fields. The owner is the
// maintainer, falling back to the author. Two fields are derived:
//
//   - dependencies: runtime requirements from requires_dist, with extra,
//     dev and test markers filtered out
//   - license_type: a short license name, preferring trove classifiers
//
// # Limitations
//
// PyPI retired its search API, so [Client.Search] returns an UNSUPPORTED
// error.
//
// [registry.Package]: github.com/tidetrawler/tidetrawler/pkg/registry.Package
package pypi
