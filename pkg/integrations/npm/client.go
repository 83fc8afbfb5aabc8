package npm

import (
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

// DefaultRegistryURL is the public npm registry.
const DefaultRegistryURL = "https://registry.npmjs.org"

// Options configures an npm client.
type Options struct {
	integrations.Options

	RegistryURL string // Default DefaultRegistryURL
}

// Client searches the npm registry. Responses are never cached.
type Client struct {
	*integrations.Client
	baseURL string
}

var _ registry.Registry = (*Client)(nil)

// NewClient creates an npm client. The store is shared with the other
// registries but never written, since npm results are not cacheable.
func NewClient(store *cache.Store, opts Options) *Client {
	base := opts.RegistryURL
	if base == "" {
		base = DefaultRegistryURL
	}
	return &Client{
		Client:  integrations.NewClient(store, "npm", opts.Options),
		baseURL: strings.TrimSuffix(base, "/"),
	}
}

// Kind implements [registry.Registry].
func (c *Client) Kind() registry.SourceKind { return registry.Npm }

// Cacheable reports false: search results change too often to reuse.
func (c *Client) Cacheable() bool { return false }

// CacheNamespace implements [registry.Registry].
func (c *Client) CacheNamespace() string { return c.Namespace() }

// Capabilities reports search as the only supported operation.
func (c *Client) Capabilities() registry.Capabilities {
	return registry.Capabilities{Search: true}
}

// Search queries the registry search endpoint with the query as free text.
func (c *Client) Search(ctx context.Context, query string) ([]registry.Package, error) {
	if err := tterrors.ValidateQuery(query); err != nil {
		return nil, err
	}
	u := c.baseURL + "/-/v1/search?" + url.Values{"text": {query}}.Encode()

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

// Package is not supported by npm.
func (c *Client) Package(context.Context, string) ([]registry.Package, error) {
	return nil, tterrors.Unsupported("npm", "package lookups")
}

// UpdateCache is not supported by npm.
func (c *Client) UpdateCache(context.Context, time.Duration) error {
	return tterrors.Unsupported("npm", "cache updates")
}

type searchResponse struct {
	Objects []json.RawMessage `json:"objects"`
	Total   int               `json:"total"`
}

type searchObject struct {
	Package json.RawMessage `json:"package"`
}

type person struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// searchPackage holds the package fields the mapping reads directly. The
// full object is kept in the metadata.
type searchPackage struct {
	Name        string            `json:"name"`
	Links       map[string]string `json:"links"`
	Author      *person           `json:"author"`
	Publisher   *person           `json:"publisher"`
	Maintainers []person          `json:"maintainers"`
}

func parseSearch(body []byte) ([]registry.Package, error) {
	var data searchResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	if data.Objects == nil {
		return nil, fmt.Errorf("npm search response has no objects field")
	}

	pkgs := make([]registry.Package, 0, len(data.Objects))
	for _, raw := range data.Objects {
		pkg, ok, err := toPackage(raw)
		if err != nil {
			return nil, err
		}
		if ok {
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs, nil
}

// toPackage maps one search result. Metadata holds the result's own fields
// (score, searchScore, ...) and every package field except name, plus the
// normalized repository URL. Results without a package name are skipped.
func toPackage(raw json.RawMessage) (registry.Package, bool, error) {
	var obj searchObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return registry.Package{}, false, err
	}
	var p searchPackage
	if len(obj.Package) > 0 {
		if err := json.Unmarshal(obj.Package, &p); err != nil {
			return registry.Package{}, false, err
		}
	}
	if p.Name == "" {
		return registry.Package{}, false, nil
	}

	md, err := registry.MetadataFromJSON(raw, "package")
	if err != nil {
		return registry.Package{}, false, err
	}
	fields, err := registry.MetadataFromJSON(obj.Package, "name")
	if err != nil {
		return registry.Package{}, false, err
	}
	for k, v := range fields {
		md[k] = v
	}
	md.Set("repository", integrations.NormalizeRepoURL(p.Links["repository"]))

	return registry.Package{
		Name:     p.Name,
		URL:      p.Links["npm"],
		Owner:    p.owner(),
		Source:   registry.Npm,
		Metadata: md,
	}, true, nil
}

// owner prefers the publishing account, then the declared author, then the
// first listed maintainer.
func (p searchPackage) owner() string {
	var publisher, author, maintainer string
	if p.Publisher != nil {
		publisher = p.Publisher.Username
	}
	if p.Author != nil {
		author = registry.PickOwner(p.Author.Name, p.Author.Username)
	}
	if len(p.Maintainers) > 0 {
		maintainer = p.Maintainers[0].Username
	}
	return registry.PickOwner(publisher, author, maintainer)
}
