package pypi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidetrawler/tidetrawler/pkg/cache"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/integrations"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

// DefaultAPIURL is the root of PyPI's JSON API.
const DefaultAPIURL = "https://pypi.org/pypi"

// ProjectURL is the public project page, formatted with the package name.
const ProjectURL = "https://pypi.org/project/%s/"

var (
	depRE    = regexp.MustCompile(`^([a-zA-Z0-9_.-]+)`)
	markerRE = regexp.MustCompile(`;\s*(.+)`)
	skipRE   = regexp.MustCompile(`extra|dev|test`)
)

// Options configures a PyPI client.
type Options struct {
	integrations.Options

	APIURL string // Default DefaultAPIURL
}

// Client provides access to the PyPI JSON API.
//
// PyPI has no search API, so only [Client.Package] is implemented.
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

var _ registry.Registry = (*Client)(nil)

// NewClient creates a PyPI client. The store is used for the pypi cache
// namespace; a nil store disables caching.
func NewClient(store *cache.Store, opts Options) *Client {
	base := opts.APIURL
	if base == "" {
		base = DefaultAPIURL
	}
	return &Client{
		Client:  integrations.NewClient(store, "pypi", opts.Options),
		baseURL: strings.TrimSuffix(base, "/"),
	}
}

// Kind implements [registry.Registry].
func (c *Client) Kind() registry.SourceKind { return registry.PyPi }

// Cacheable reports false: package lookups, the only supported operation,
// always hit the network.
func (c *Client) Cacheable() bool { return false }

// CacheNamespace implements [registry.Registry].
func (c *Client) CacheNamespace() string { return c.Namespace() }

// Capabilities implements [registry.Registry].
func (c *Client) Capabilities() registry.Capabilities {
	return registry.Capabilities{Package: true}
}

// Search is not supported by PyPI.
func (c *Client) Search(context.Context, string) ([]registry.Package, error) {
	return nil, tterrors.Unsupported("pypi", "search")
}

// Package retrieves the latest release of a Python package.
//
// The name is normalized following PEP 503 (case-insensitive,
// underscores→hyphens) before the request. The lookup bypasses the cache.
//
// Returns a single-element slice on success, a PACKAGE_NOT_FOUND error if
// the project doesn't exist, or a NETWORK_ERROR for HTTP failures.
func (c *Client) Package(ctx context.Context, name string) ([]registry.Package, error) {
	if err := tterrors.ValidatePythonPackageName(strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/%s/json", c.baseURL, url.PathEscape(integrations.NormalizePkgName(name)))

	var pkg registry.Package
	err := c.Cached(ctx, u, c.Cacheable(), func(body []byte) error {
		parsed, err := parsePackage(body)
		if err != nil {
			return err
		}
		pkg = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []registry.Package{pkg}, nil
}

// UpdateCache prepares the pypi cache namespace and returns UNSUPPORTED:
// PyPI offers no bulk listing worth mirroring.
func (c *Client) UpdateCache(ctx context.Context, minAge time.Duration) error {
	if _, err := c.EnsureNamespace(); err != nil {
		return err
	}
	return tterrors.Unsupported("pypi", "cache updates")
}

type apiResponse struct {
	Info       json.RawMessage `json:"info"`
	LastSerial json.Number     `json:"last_serial"`
}

type apiInfo struct {
	Name         string   `json:"name"`
	PackageURL   string   `json:"package_url"`
	License      string   `json:"license"`
	Classifiers  []string `json:"classifiers"`
	RequiresDist []string `json:"requires_dist"`
	Author       string   `json:"author"`
	Maintainer   string   `json:"maintainer"`
}

// parsePackage maps the JSON API response. Every info field except name
// and package_url goes into the metadata, alongside last_serial and the
// derived dependencies and license_type.
func parsePackage(body []byte) (registry.Package, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data apiResponse
	if err := dec.Decode(&data); err != nil {
		return registry.Package{}, err
	}
	if len(data.Info) == 0 || string(data.Info) == "null" {
		return registry.Package{}, fmt.Errorf("pypi response has no info object")
	}

	var info apiInfo
	if err := json.Unmarshal(data.Info, &info); err != nil {
		return registry.Package{}, err
	}
	if info.Name == "" {
		return registry.Package{}, fmt.Errorf("pypi response has no package name")
	}

	md, err := registry.MetadataFromJSON(data.Info, "name", "package_url")
	if err != nil {
		return registry.Package{}, err
	}
	if data.LastSerial != "" {
		md.Set("last_serial", data.LastSerial)
	}
	if deps := extractDeps(info.RequiresDist); len(deps) > 0 {
		md.Set("dependencies", deps)
	}
	md.Set("license_type", extractLicenseType(info.License, info.Classifiers))

	return registry.Package{
		Name:     info.Name,
		URL:      registry.FirstNonEmpty(info.PackageURL, fmt.Sprintf(ProjectURL, integrations.NormalizePkgName(info.Name))),
		Owner:    registry.PickOwner(info.Maintainer, info.Author),
		Source:   registry.PyPi,
		Metadata: md,
	}, nil
}

// extractDeps returns the normalized names of runtime requirements.
// Requirements guarded by extra, dev or test markers are skipped.
func extractDeps(requires []string) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, req := range requires {
		if m := markerRE.FindStringSubmatch(req); len(m) > 1 && skipRE.MatchString(m[1]) {
			continue
		}
		if m := depRE.FindStringSubmatch(req); len(m) > 1 {
			dep := integrations.NormalizePkgName(m[1])
			if !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
	}
	return deps
}

// extractLicenseType extracts a short license identifier from PyPI data.
// It prefers the classifier (e.g., "License :: OSI Approved :: MIT License" -> "MIT License")
// and falls back to the license field if it's short enough.
func extractLicenseType(license string, classifiers []string) string {
	for _, c := range classifiers {
		if strings.HasPrefix(c, "License :: ") {
			parts := strings.Split(c, " :: ")
			if len(parts) >= 3 {
				return parts[len(parts)-1]
			}
		}
	}

	if license != "" && len(license) < 100 && !strings.Contains(license, "\n") {
		return strings.TrimSpace(license)
	}

	// Long license texts usually open with the type, e.g. "Apache License 2.0".
	if license != "" {
		firstLine := strings.TrimSpace(strings.Split(license, "\n")[0])
		if len(firstLine) < 50 {
			return firstLine
		}
	}

	return ""
}
