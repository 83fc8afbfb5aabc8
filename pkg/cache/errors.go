package cache

import "errors"

// Reasons a stored record is not served. Lookup folds all of them into a
// plain miss; Sweep uses them to decide what to remove and what to count.
var (
	// errMissing means no file exists for the key.
	errMissing = errors.New("cache entry not found")

	// errCorrupt means the file exists but could not be read or decoded.
	errCorrupt = errors.New("cache entry corrupt")

	// errExpired means the record is older than the requested max age.
	errExpired = errors.New("cache entry expired")
)
