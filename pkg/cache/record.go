package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// Record is one cached registry response.
//
// Content is opaque to the cache: it is stored and returned byte for byte and
// only the registry client that wrote it knows how to parse it.
//
// On disk a Record is a JSON object with the keys "cache_id", "updated",
// "url" and "content", which is the layout existing tidetrawler cache
// directories use. Decoding also accepts "updated_at" and "source_url".
type Record struct {
	CacheID   string    `json:"cache_id"` // ETag or other freshness token; not used for conditional requests
	UpdatedAt time.Time `json:"updated"`  // When the record was written (UTC)
	SourceURL string    `json:"url"`      // The lookup key, stored verbatim
	Content   string    `json:"content"`  // Raw response body
}

// NewRecord creates a record for url stamped with the current UTC time.
func NewRecord(url, cacheID, content string) Record {
	return Record{
		CacheID:   cacheID,
		UpdatedAt: time.Now().UTC(),
		SourceURL: url,
		Content:   content,
	}
}

// Key returns the cache key of the record's source URL.
func (r Record) Key() string { return Key(r.SourceURL) }

// Age returns how long ago the record was written, relative to now.
func (r Record) Age(now time.Time) time.Duration { return now.Sub(r.UpdatedAt) }

// Equal reports whether r and o hold the same data.
// Timestamps are compared with time.Time.Equal so that location and
// monotonic clock readings do not matter.
func (r Record) Equal(o Record) bool {
	return r.CacheID == o.CacheID &&
		r.UpdatedAt.Equal(o.UpdatedAt) &&
		r.SourceURL == o.SourceURL &&
		r.Content == o.Content
}

// recordJSON accepts both key spellings found in cache files.
type recordJSON struct {
	CacheID   *string    `json:"cache_id"`
	Updated   *time.Time `json:"updated"`
	UpdatedAt *time.Time `json:"updated_at"`
	URL       *string    `json:"url"`
	SourceURL *string    `json:"source_url"`
	Content   *string    `json:"content"`
}

var errIncompleteRecord = errors.New("cache record is missing required fields")

// UnmarshalJSON decodes a record and rejects objects missing any field, so
// that foreign JSON files in the cache directory read as corrupt.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	updated := first(raw.Updated, raw.UpdatedAt)
	url := first(raw.URL, raw.SourceURL)
	if raw.CacheID == nil || updated == nil || url == nil || raw.Content == nil {
		return errIncompleteRecord
	}

	*r = Record{
		CacheID:   *raw.CacheID,
		UpdatedAt: *updated,
		SourceURL: *url,
		Content:   *raw.Content,
	}
	return nil
}

func first[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
