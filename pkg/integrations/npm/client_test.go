package npm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/tidetrawler/tidetrawler/pkg/cache"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

const searchBody = `{
  "objects": [
    {
      "package": {
        "name": "api",
        "scope": "unscoped",
        "version": "6.1.1",
        "description": "Magical SDK generation from an OpenAPI definition",
        "keywords": ["api", "openapi"],
        "date": "2023-08-18T19:28:06.370Z",
        "links": {
          "npm": "https://www.npmjs.com/package/api",
          "repository": "git+https://github.com/readmeio/api.git"
        },
        "author": {"name": "ReadMe"},
        "publisher": {"username": "jonursenbach", "email": "jon@example.com"},
        "maintainers": [{"username": "gratcliff"}]
      },
      "score": {"final": 0.29, "detail": {"quality": 0.52, "popularity": 0.11, "maintenance": 0.33}},
      "searchScore": 100.5
    },
    {
      "package": {
        "name": "left-pad",
        "version": "1.3.0",
        "links": {"npm": "https://www.npmjs.com/package/left-pad"},
        "author": {"name": "azer"},
        "maintainers": [{"username": "stevemao"}]
      }
    },
    {
      "package": {
        "name": "orphan",
        "version": "0.0.1",
        "links": {},
        "maintainers": [{"username": "someone"}]
      }
    }
  ],
  "total": 3
}`

func testClient(t *testing.T, serverURL string, store *cache.Store) *Client {
	t.Helper()
	return NewClient(store, Options{RegistryURL: serverURL})
}

func TestClient_Identity(t *testing.T) {
	c := NewClient(nil, Options{})
	if c.baseURL != DefaultRegistryURL {
		t.Errorf("baseURL = %s", c.baseURL)
	}
	if c.Kind() != registry.Npm || c.Cacheable() || c.CacheNamespace() != "npm" {
		t.Error("unexpected registry identity")
	}
	if caps := c.Capabilities(); !caps.Search || caps.Package || caps.UpdateCache || caps.Cacheable {
		t.Errorf("Capabilities() = %+v", caps)
	}
}

func TestClient_Search(t *testing.T) {
	var gotText string
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/-/v1/search" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotText = r.URL.Query().Get("text")
		w.Write([]byte(searchBody))
	}))
	defer server.Close()

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := testClient(t, server.URL, store)

	pkgs, err := c.Search(context.Background(), "openapi sdk")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if _, err := c.Search(context.Background(), "openapi sdk"); err != nil {
		t.Fatal(err)
	}

	if gotText != "openapi sdk" {
		t.Errorf("text = %q", gotText)
	}
	if hits.Load() != 2 {
		t.Errorf("npm responses must not be cached: %d hits", hits.Load())
	}
	if entries, _ := os.ReadDir(store.Dir()); len(entries) != 0 {
		t.Errorf("cache directory holds %d files", len(entries))
	}

	if len(pkgs) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(pkgs))
	}

	api := pkgs[0]
	if api.URL != "https://www.npmjs.com/package/api" || api.Source != registry.Npm {
		t.Errorf("unexpected package %+v", api)
	}
	if api.Metadata["version"] != "6.1.1" {
		t.Errorf("version = %#v", api.Metadata["version"])
	}
	if api.Metadata["repository"] != "https://github.com/readmeio/api" {
		t.Errorf("repository = %#v", api.Metadata["repository"])
	}
	if _, ok := api.Metadata["name"]; ok {
		t.Error("name must not be repeated in metadata")
	}
	if _, ok := api.Metadata["package"]; ok {
		t.Error("package object must be flattened into metadata")
	}
	if api.Metadata["searchScore"] != json.Number("100.5") {
		t.Errorf("searchScore = %#v", api.Metadata["searchScore"])
	}
	if pkgs[1].Metadata["version"] != "1.3.0" {
		t.Errorf("left-pad version = %#v", pkgs[1].Metadata["version"])
	}
	if _, ok := pkgs[1].Metadata["score"]; ok {
		t.Error("missing score should be omitted")
	}
}

func TestClient_SearchKeepsPackageFields(t *testing.T) {
	pkgs, err := parseSearch([]byte(searchBody))
	if err != nil {
		t.Fatal(err)
	}
	md := pkgs[0].Metadata

	author, ok := md["author"].(map[string]any)
	if !ok || author["name"] != "ReadMe" {
		t.Errorf("author = %#v", md["author"])
	}
	publisher, ok := md["publisher"].(map[string]any)
	if !ok || publisher["username"] != "jonursenbach" || publisher["email"] != "jon@example.com" {
		t.Errorf("publisher = %#v", md["publisher"])
	}
	maintainers, ok := md["maintainers"].([]any)
	if !ok || len(maintainers) != 1 {
		t.Fatalf("maintainers = %#v", md["maintainers"])
	}
	if m, _ := maintainers[0].(map[string]any); m["username"] != "gratcliff" {
		t.Errorf("maintainers[0] = %#v", maintainers[0])
	}
	links, ok := md["links"].(map[string]any)
	if !ok || links["npm"] != "https://www.npmjs.com/package/api" || links["repository"] != "git+https://github.com/readmeio/api.git" {
		t.Errorf("links = %#v", md["links"])
	}
	if kw, ok := md["keywords"].([]any); !ok || len(kw) != 2 {
		t.Errorf("keywords = %#v", md["keywords"])
	}

	score, ok := md["score"].(map[string]any)
	if !ok {
		t.Fatalf("score = %#v", md["score"])
	}
	if score["final"] != json.Number("0.29") {
		t.Errorf("score.final = %#v", score["final"])
	}
	detail, ok := score["detail"].(map[string]any)
	if !ok || detail["quality"] != json.Number("0.52") || len(detail) != 3 {
		t.Errorf("score.detail = %#v", score["detail"])
	}

	if _, ok := pkgs[2].Metadata["links"]; ok {
		t.Error("empty links object should be omitted")
	}
}

func TestClient_SearchOwnerPrecedence(t *testing.T) {
	pkgs, err := parseSearch([]byte(searchBody))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"jonursenbach", "azer", "someone"}
	for i, w := range want {
		if pkgs[i].Owner != w {
			t.Errorf("%s owner = %q, want %q", pkgs[i].Name, pkgs[i].Owner, w)
		}
	}
}

func TestClient_SearchParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!doctype html>`))
	}))
	defer server.Close()

	_, err := testClient(t, server.URL, nil).Search(context.Background(), "x")
	if !tterrors.Is(err, tterrors.ErrCodeParse) {
		t.Errorf("Search() error = %v, want PARSE_ERROR", err)
	}
}

func TestClient_Unsupported(t *testing.T) {
	c := NewClient(nil, Options{})

	if _, err := c.Package(context.Background(), "left-pad"); !tterrors.IsUnsupported(err) {
		t.Errorf("Package() error = %v, want UNSUPPORTED", err)
	}
	if err := c.UpdateCache(context.Background(), 0); !tterrors.IsUnsupported(err) {
		t.Errorf("UpdateCache() error = %v, want UNSUPPORTED", err)
	}
}
