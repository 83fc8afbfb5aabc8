package crates

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidetrawler/tidetrawler/pkg/cache"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/integrations"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

const (
	// DefaultAPIURL is the crates.io web API root.
	DefaultAPIURL = "https://crates.io/api/v1"

	// DefaultIndexURL is the sparse registry index root.
	DefaultIndexURL = "https://index.crates.io"

	// CrateURL is the public crate page, formatted with the crate name.
	CrateURL = "https://crates.io/crates/%s"
)

// Options configures a crates.io client.
type Options struct {
	integrations.Options

	APIURL   string // Default DefaultAPIURL
	IndexURL string // Default DefaultIndexURL
}

// Client provides access to the crates.io registry.
//
// Search results are cached in the shared store; index lookups are always
// fetched live. All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	apiURL   string
	indexURL string
}

var _ registry.Registry = (*Client)(nil)

// NewClient creates a crates.io client caching search responses in store.
// A nil store disables caching.
func NewClient(store *cache.Store, opts Options) *Client {
	return &Client{
		Client:   integrations.NewClient(store, "crates", opts.Options),
		apiURL:   strings.TrimSuffix(orDefault(opts.APIURL, DefaultAPIURL), "/"),
		indexURL: strings.TrimSuffix(orDefault(opts.IndexURL, DefaultIndexURL), "/"),
	}
}

// Kind implements [registry.Registry].
func (c *Client) Kind() registry.SourceKind { return registry.Crates }

// Cacheable implements [registry.Registry].
func (c *Client) Cacheable() bool { return true }

// CacheNamespace implements [registry.Registry].
func (c *Client) CacheNamespace() string { return c.Namespace() }

// Capabilities implements [registry.Registry].
func (c *Client) Capabilities() registry.Capabilities {
	return registry.Capabilities{Search: true, Package: true, Cacheable: true}
}

// Search queries the crates.io API. The exact request URL is the cache key,
// so identical queries share one cache record.
func (c *Client) Search(ctx context.Context, query string) ([]registry.Package, error) {
	if err := tterrors.ValidateQuery(query); err != nil {
		return nil, err
	}
	u := c.apiURL + "/crates?" + url.Values{"q": {query}}.Encode()

	var pkgs []registry.Package
	err := c.Cached(ctx, u, c.Cacheable(), func(body []byte) error {
		parsed, err := parseSearch(body)
		if err != nil {
			return err
		}
		pkgs = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pkgs, nil
}

// Package fetches every published version of a crate from the sparse index.
// Index lookups bypass the cache.
func (c *Client) Package(ctx context.Context, name string) ([]registry.Package, error) {
	if err := tterrors.ValidateCratesPackageName(name); err != nil {
		return nil, err
	}
	u := c.indexURL + "/" + IndexPath(name)

	body, _, err := c.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return parseIndex(body)
}

// UpdateCache prepares the crates cache namespace. Bulk index mirroring is
// not implemented, so it always returns an UNSUPPORTED error once the
// directory exists.
func (c *Client) UpdateCache(ctx context.Context, minAge time.Duration) error {
	if _, err := c.EnsureNamespace(); err != nil {
		return err
	}
	return tterrors.Unsupported("crates", "cache updates")
}

// IndexPath returns the sparse index path of a crate, relative to the index
// root. Names are lowercased; names shorter than five bytes live under their
// length, longer ones under their first two and next two characters:
//
//	"a-b"   -> "3/a-b"
//	"serde" -> "se/rd/serde"
func IndexPath(name string) string {
	name = strings.ToLower(name)
	if len(name) < 5 {
		return fmt.Sprintf("%d/%s", len(name), name)
	}
	return fmt.Sprintf("%s/%s/%s", name[0:2], name[2:4], name)
}

type searchResponse struct {
	Crates []json.RawMessage `json:"crates"`
	Meta   struct {
		Total    int     `json:"total"`
		NextPage *string `json:"next_page"`
	} `json:"meta"`
}

type crateSummary struct {
	Name     string `json:"name"`
	Homepage string `json:"homepage"`
}

func parseSearch(body []byte) ([]registry.Package, error) {
	var data searchResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	if data.Crates == nil {
		return nil, fmt.Errorf("crates search response has no crates field")
	}

	pkgs := make([]registry.Package, 0, len(data.Crates))
	for _, raw := range data.Crates {
		pkg, err := fromSearchHit(raw)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// fromSearchHit maps one crate object. The package URL is the crate's
// homepage when it has one, otherwise its crates.io page.
func fromSearchHit(raw json.RawMessage) (registry.Package, error) {
	var s crateSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return registry.Package{}, err
	}
	if s.Name == "" {
		return registry.Package{}, fmt.Errorf("crate entry without a name")
	}
	md, err := registry.MetadataFromJSON(raw, "name")
	if err != nil {
		return registry.Package{}, err
	}
	return registry.Package{
		Name:     s.Name,
		URL:      registry.FirstNonEmpty(s.Homepage, fmt.Sprintf(CrateURL, s.Name)),
		Source:   registry.Crates,
		Metadata: md,
	}, nil
}

// indexEntry is one line of a sparse index file.
type indexEntry struct {
	Name    string `json:"name"`
	Version string `json:"vers"`
}

// parseIndex maps each NDJSON line to a Package. Lines that do not parse are
// skipped, but a non-empty file without a single usable line is an error.
func parseIndex(body []byte) ([]registry.Package, error) {
	var pkgs []registry.Package
	lines := 0

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines++
		if pkg, ok := fromIndexLine(line); ok {
			pkgs = append(pkgs, pkg)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, tterrors.Wrap(tterrors.ErrCodeParse, err, "read crate index")
	}
	if lines > 0 && len(pkgs) == 0 {
		return nil, tterrors.New(tterrors.ErrCodeParse, "no valid entries in crate index (%d lines)", lines)
	}
	return pkgs, nil
}

func fromIndexLine(line []byte) (registry.Package, bool) {
	var e indexEntry
	if err := json.Unmarshal(line, &e); err != nil || e.Name == "" || e.Version == "" {
		return registry.Package{}, false
	}
	md, err := registry.MetadataFromJSON(line, "name")
	if err != nil {
		return registry.Package{}, false
	}

	return registry.Package{
		Name:     e.Name,
		URL:      fmt.Sprintf(CrateURL, e.Name),
		Source:   registry.Crates,
		Metadata: md,
	}, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
