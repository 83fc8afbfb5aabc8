package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
)

// AppName is the directory name used under the user's cache directory.
const AppName = "tidetrawler"

const (
	tempPrefix = ".tmp-"

	// staleTempAge is how old an in-flight write file must be before a sweep
	// treats it as abandoned.
	staleTempAge = time.Minute
)

// LookupOptions controls how [Store.Lookup] treats old records.
type LookupOptions struct {
	// MaxAge bounds the age of a served record. Zero accepts any age.
	MaxAge time.Duration

	// DeleteExpired removes the backing file of a record found to be expired.
	// Removal is best-effort; failures are ignored.
	DeleteExpired bool
}

// SweepStats summarizes one [Store.Sweep] pass.
type SweepStats struct {
	Kept    int // Live records now in the index
	Expired int // Records removed for exceeding the max age
	Corrupt int // Unreadable or undecodable files removed
	Skipped int // Entries not following the key-file naming convention
}

// Store is a file-backed cache of registry responses keyed by source URL.
//
// Each record lives in its own file, <dir>/<sha256(url)>.json. Reads never
// fail: a missing, corrupt or expired file is reported as a miss so callers
// fall through to a live fetch.
//
// The in-memory index is a working set built by [Store.Sweep]. It is not a
// live view of the directory and goes stale when other processes write to it.
//
// A Store is safe for concurrent use. Lookups run in parallel; Sweep and Clear
// run exclusively. Save writes its file without holding the lock, so two
// concurrent saves of the same URL resolve as last writer wins.
type Store struct {
	dir    string
	logger *log.Logger
	now    func() time.Time

	mu    sync.RWMutex
	index map[string]Record
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for sweep reports and write failures.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store rooted at dir.
// The directory is created, including parents, if it doesn't exist; failure
// to create it is returned as a STORAGE_ERROR since nothing can be cached
// without it.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, tterrors.New(tterrors.ErrCodeInvalidInput, "cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tterrors.Wrap(tterrors.ErrCodeStorage, err, "create cache directory %s", dir)
	}

	s := &Store{
		dir:    dir,
		logger: log.Default(),
		now:    time.Now,
		index:  make(map[string]Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultDir returns the default cache root, $XDG_CACHE_HOME/tidetrawler or
// ~/.cache/tidetrawler.
func DefaultDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// Dir returns the cache root directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file a record for url is stored in.
func (s *Store) Path(url string) string { return s.keyPath(Key(url)) }

// EnsureNamespace creates the subdirectory ns under the cache root and
// returns its path. Registries use namespaces for data that is not a
// URL-keyed record.
func (s *Store) EnsureNamespace(ns string) (string, error) {
	if ns == "" || ns != filepath.Base(ns) || ns == "." || ns == ".." {
		return "", tterrors.New(tterrors.ErrCodeInvalidInput, "invalid cache namespace %q", ns)
	}
	path := filepath.Join(s.dir, ns)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", tterrors.Wrap(tterrors.ErrCodeStorage, err, "create cache namespace %s", ns)
	}
	return path, nil
}

// Save writes rec to its key file, replacing any previous record for the same
// URL. The write goes through a temporary file and a rename so readers never
// see a partial record.
func (s *Store) Save(rec Record) error {
	if rec.SourceURL == "" {
		return tterrors.New(tterrors.ErrCodeInvalidInput, "cache record has no source URL")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return tterrors.Wrap(tterrors.ErrCodeStorage, err, "encode cache record")
	}

	key := rec.Key()
	if err := writeFileAtomic(s.keyPath(key), data); err != nil {
		return tterrors.Wrap(tterrors.ErrCodeStorage, err, "write cache record for %s", rec.SourceURL)
	}

	s.mu.Lock()
	if _, ok := s.index[key]; ok {
		s.index[key] = rec
	}
	s.mu.Unlock()
	return nil
}

// Lookup returns the record cached for url.
//
// It reports false when no file exists, when the file cannot be decoded, or
// when opts.MaxAge is set and the record is strictly older than it. A record
// exactly MaxAge old is still served.
func (s *Store) Lookup(url string, opts LookupOptions) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.load(Key(url), opts)
	return rec, err == nil
}

// Sweep rebuilds the index from disk and evicts stale entries.
//
// Every "<key>.json" file is loaded with maxAge and delete-on-expiry; live
// records are indexed, expired ones are deleted by the lookup and corrupt ones
// are deleted here. Anything else in the directory is reported and left alone.
// A zero maxAge keeps every readable record.
func (s *Store) Sweep(maxAge time.Duration) (SweepStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats SweepStats
	s.index = make(map[string]Record)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return stats, tterrors.Wrap(tterrors.ErrCodeStorage, err, "read cache directory %s", s.dir)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			s.logger.Debug("skipping cache subdirectory", "name", name)
			stats.Skipped++
			continue
		}
		if strings.HasPrefix(name, tempPrefix) {
			s.removeStaleTemp(entry)
			continue
		}
		key, ok := keyFromFilename(name)
		if !ok {
			s.logger.Warn("unexpected file in cache directory", "name", name, "dir", s.dir)
			stats.Skipped++
			continue
		}

		rec, err := s.load(key, LookupOptions{MaxAge: maxAge, DeleteExpired: true})
		switch {
		case err == nil:
			s.index[key] = rec
			stats.Kept++
		case errors.Is(err, errExpired):
			stats.Expired++
		case errors.Is(err, errCorrupt):
			if rmErr := os.Remove(s.keyPath(key)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.logger.Warn("failed to remove corrupt cache file", "name", name, "err", rmErr)
			}
			stats.Corrupt++
		}
	}

	s.logger.Debug("cache sweep complete",
		"kept", stats.Kept,
		"expired", stats.Expired,
		"corrupt", stats.Corrupt,
		"skipped", stats.Skipped)
	return stats, nil
}

// removeStaleTemp deletes a leftover atomic-write file once it is older than
// staleTempAge. Younger files may belong to a concurrent writer.
func (s *Store) removeStaleTemp(entry fs.DirEntry) {
	info, err := entry.Info()
	if err != nil || s.now().Sub(info.ModTime()) <= staleTempAge {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("failed to remove stale temp file", "name", entry.Name(), "err", err)
		return
	}
	s.logger.Debug("removed stale temp file", "name", entry.Name())
}

// Clear removes every key file from the cache root and empties the index.
// Files not following the naming convention and subdirectories are kept.
// It returns the number of records removed.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = make(map[string]Record)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, tterrors.Wrap(tterrors.ErrCodeStorage, err, "read cache directory %s", s.dir)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := keyFromFilename(entry.Name()); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			count++
		}
	}
	return count, nil
}

// Index returns a copy of the in-memory index built by the last sweep.
func (s *Store) Index() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.index)
}

// Len returns the number of indexed records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// load reads the record stored under key. Callers hold s.mu.
func (s *Store) load(key string, opts LookupOptions) (Record, error) {
	path := s.keyPath(key)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, errMissing
	}
	if err != nil {
		return Record{}, errCorrupt
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errCorrupt
	}

	if opts.MaxAge > 0 && rec.Age(s.now()) > opts.MaxAge {
		if opts.DeleteExpired {
			_ = os.Remove(path)
		}
		return Record{}, errExpired
	}
	return rec, nil
}

// keyPath converts a cache key to a file path.
func (s *Store) keyPath(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0o644)
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
