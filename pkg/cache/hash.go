package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// keyLen is the length of a cache key: a hex-encoded SHA-256 digest.
const keyLen = sha256.Size * 2

// fileExt is appended to every cache key to form its filename.
const fileExt = ".json"

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Key derives the cache key for a source URL.
// The key is the lowercase hex SHA-256 digest of the URL, so it is stable
// across process runs and safe to use as a filename.
func Key(url string) string {
	return Hash([]byte(url))
}

// keyFromFilename returns the cache key encoded in a cache filename.
// It reports false for anything that is not "<64 lowercase hex chars>.json".
func keyFromFilename(name string) (string, bool) {
	key, ok := strings.CutSuffix(name, fileExt)
	if !ok || len(key) != keyLen {
		return "", false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", false
		}
	}
	return key, true
}
