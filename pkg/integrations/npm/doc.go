// Package npm provides a registry client for the npm registry
// (https://registry.npmjs.org).
//
// Only search is supported, through the registry's /-/v1/search endpoint.
// Search results are not cached. Package lookups and cache updates return
// UNSUPPORTED errors.
//
// The owner of a search hit is the account that published the latest
// version, falling back to the package author and then to its first
// maintainer.
package npm
