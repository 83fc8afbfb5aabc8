package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tidetrawler/tidetrawler/pkg/cache"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/integrations"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

const flaskBody = `{
  "info": {
    "name": "Flask",
    "version": "2.0.0",
    "summary": "A micro web framework",
    "description": "",
    "license": "BSD-3-Clause",
    "classifiers": ["License :: OSI Approved :: BSD License"],
    "requires_dist": ["click>=7.0", "Werkzeug>=2.0", "pytest; extra == 'test'"],
    "project_urls": {"Source": "https://github.com/pallets/flask"},
    "home_page": null,
    "author": "Armin Ronacher",
    "maintainer": "Pallets",
    "package_url": "https://pypi.org/project/Flask/",
    "yanked": false
  },
  "last_serial": 24398841,
  "releases": {}
}`

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(nil, Options{APIURL: serverURL})
}

func TestClient_Identity(t *testing.T) {
	c := NewClient(nil, Options{})
	if c.baseURL != DefaultAPIURL {
		t.Errorf("baseURL = %s", c.baseURL)
	}
	if c.Kind() != registry.PyPi || c.Cacheable() || c.CacheNamespace() != "pypi" {
		t.Error("unexpected registry identity")
	}
	if caps := c.Capabilities(); caps.Search || !caps.Package || caps.UpdateCache || caps.Cacheable {
		t.Errorf("Capabilities() = %+v", caps)
	}
}

func TestClient_Package(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Path == "/flask/json" {
			w.Write([]byte(flaskBody))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	pkgs, err := c.Package(context.Background(), "Flask")
	if err != nil {
		t.Fatalf("Package failed: %v", err)
	}
	if gotPath != "/flask/json" {
		t.Errorf("path = %q, want normalized name", gotPath)
	}
	if len(pkgs) != 1 {
		t.Fatalf("expected 1 package, got %d", len(pkgs))
	}

	p := pkgs[0]
	if p.Name != "Flask" || p.Source != registry.PyPi {
		t.Errorf("unexpected package %+v", p)
	}
	if p.URL != "https://pypi.org/project/Flask/" {
		t.Errorf("URL = %q", p.URL)
	}
	if p.Owner != "Pallets" {
		t.Errorf("Owner = %q, want maintainer", p.Owner)
	}

	for _, k := range []string{"name", "package_url", "description", "home_page"} {
		if _, ok := p.Metadata[k]; ok {
			t.Errorf("metadata should not contain %q", k)
		}
	}
	if n, ok := p.Metadata["last_serial"].(json.Number); !ok || n.String() != "24398841" {
		t.Errorf("last_serial = %#v", p.Metadata["last_serial"])
	}
	if p.Metadata["version"] != "2.0.0" || p.Metadata["yanked"] != false {
		t.Errorf("metadata = %v", p.Metadata)
	}
	if p.Metadata["license_type"] != "BSD License" {
		t.Errorf("license_type = %#v", p.Metadata["license_type"])
	}
	deps, _ := p.Metadata["dependencies"].([]string)
	if len(deps) != 2 || deps[0] != "click" || deps[1] != "werkzeug" {
		t.Errorf("dependencies = %#v", p.Metadata["dependencies"])
	}
}

func TestClient_PackageOwnerFallback(t *testing.T) {
	tests := []struct {
		name       string
		maintainer string
		author     string
		want       string
	}{
		{"maintainer", "Pallets", "Armin", "Pallets"},
		{"author fallback", "", "Armin", "Armin"},
		{"none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]any{
				"info": map[string]any{
					"name":       "pkg",
					"maintainer": tt.maintainer,
					"author":     tt.author,
				},
				"last_serial": 1,
			})
			p, err := parsePackage(body)
			if err != nil {
				t.Fatal(err)
			}
			if p.Owner != tt.want {
				t.Errorf("Owner = %q, want %q", p.Owner, tt.want)
			}
			if p.URL != "https://pypi.org/project/pkg/" {
				t.Errorf("URL fallback = %q", p.URL)
			}
		})
	}
}

func TestClient_Package_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c := testClient(t, server.URL)

	_, err := c.Package(context.Background(), "missing-pkg")
	if err == nil {
		t.Fatal("expected error for missing package")
	}
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !tterrors.Is(err, tterrors.ErrCodePackageNotFound) {
		t.Errorf("expected PACKAGE_NOT_FOUND, got %s", tterrors.GetCode(err))
	}
}

func TestClient_PackageErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "Not Found"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	if _, err := c.Package(context.Background(), ""); !tterrors.Is(err, tterrors.ErrCodeInvalidPackage) {
		t.Errorf("empty name error = %v", err)
	}
	if _, err := c.Package(context.Background(), "requests"); !tterrors.Is(err, tterrors.ErrCodeParse) {
		t.Errorf("response without info error = %v, want PARSE_ERROR", err)
	}
}

func TestClient_PackageNotCached(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(flaskBody))
	}))
	defer server.Close()

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(store, Options{APIURL: server.URL})
	if _, err := c.Package(context.Background(), "flask"); err != nil {
		t.Fatal(err)
	}
	if entries, _ := os.ReadDir(store.Dir()); len(entries) != 0 {
		t.Errorf("package lookups must bypass the cache, found %d files", len(entries))
	}
}

func TestClient_Unsupported(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(store, Options{})

	if _, err := c.Search(context.Background(), "flask"); !tterrors.IsUnsupported(err) {
		t.Errorf("Search() error = %v, want UNSUPPORTED", err)
	}
	if err := c.UpdateCache(context.Background(), 0); !tterrors.IsUnsupported(err) {
		t.Errorf("UpdateCache() error = %v, want UNSUPPORTED", err)
	}
	if info, err := os.Stat(filepath.Join(store.Dir(), "pypi")); err != nil || !info.IsDir() {
		t.Errorf("pypi namespace not created: %v", err)
	}
}

func TestExtractDeps_FiltersMarkers(t *testing.T) {
	tests := []struct {
		input    []string
		expected int
	}{
		{[]string{"requests", "numpy; extra == 'dev'"}, 1},
		{[]string{"django>=3.0", "pytest; extra == 'test'"}, 1},
		{[]string{"flask"}, 1},
		{[]string{"Flask", "flask_login", "flask"}, 2},
	}

	for _, tt := range tests {
		got := extractDeps(tt.input)
		if len(got) != tt.expected {
			t.Errorf("extractDeps(%v): expected %d deps, got %d", tt.input, tt.expected, len(got))
		}
	}
}

func TestExtractLicenseType(t *testing.T) {
	tests := []struct {
		name        string
		license     string
		classifiers []string
		want        string
	}{
		{"classifier wins", "BSD", []string{"License :: OSI Approved :: MIT License"}, "MIT License"},
		{"short field", " Apache-2.0 ", nil, "Apache-2.0"},
		{"full text", "MIT License\n\nPermission is hereby granted...", nil, "MIT License"},
		{"empty", "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractLicenseType(tt.license, tt.classifiers); got != tt.want {
				t.Errorf("extractLicenseType() = %q, want %q", got, tt.want)
			}
		})
	}
}
