package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tidetrawler/tidetrawler/pkg/aggregate"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/integrations"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

type stubRegistry struct {
	kind registry.SourceKind
	caps registry.Capabilities
	pkgs []registry.Package
	err  error
}

func (s *stubRegistry) Kind() registry.SourceKind            { return s.kind }
func (s *stubRegistry) Capabilities() registry.Capabilities { return s.caps }
func (s *stubRegistry) Cacheable() bool                      { return s.caps.Cacheable }
func (s *stubRegistry) CacheNamespace() string               { return s.kind.Slug() }

func (s *stubRegistry) Search(context.Context, string) ([]registry.Package, error) {
	return s.pkgs, s.err
}

func (s *stubRegistry) Package(context.Context, string) ([]registry.Package, error) {
	return s.pkgs, s.err
}

func (s *stubRegistry) UpdateCache(context.Context, time.Duration) error {
	return tterrors.Unsupported(s.kind.Slug(), "cache updates")
}

func newTestServer(t *testing.T, regs ...registry.Registry) *httptest.Server {
	t.Helper()
	logger := log.New(io.Discard)
	srv := httptest.NewServer(New(aggregate.New(regs, aggregate.WithLogger(logger)), logger))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestRegistries(t *testing.T) {
	srv := newTestServer(t,
		&stubRegistry{kind: registry.Crates, caps: registry.Capabilities{Search: true, Package: true, Cacheable: true}},
		&stubRegistry{kind: registry.Npm, caps: registry.Capabilities{Search: true}},
	)

	var got []registryInfo
	if code := get(t, srv.URL+"/v1/registries", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(got) != 2 || got[0].Kind != registry.Crates || !got[0].Capabilities.Cacheable || got[1].Capabilities.Package {
		t.Errorf("registries = %+v", got)
	}
}

func TestSearch(t *testing.T) {
	crates := &stubRegistry{
		kind: registry.Crates,
		caps: registry.Capabilities{Search: true},
		pkgs: []registry.Package{{Name: "serde", Source: registry.Crates}},
	}
	npm := &stubRegistry{
		kind: registry.Npm,
		caps: registry.Capabilities{Search: true},
		err:  tterrors.Wrap(tterrors.ErrCodeNetwork, integrations.ErrNetwork, "npm down"),
	}
	pypi := &stubRegistry{kind: registry.PyPi, caps: registry.Capabilities{Package: true}}
	srv := newTestServer(t, crates, npm, pypi)

	var got searchResponse
	if code := get(t, srv.URL+"/v1/search?q=serde", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(got.Packages) != 1 || got.Packages[0].Name != "serde" {
		t.Errorf("packages = %+v", got.Packages)
	}
	if len(got.Failures) != 1 || got.Failures[0].Source != registry.Npm || got.Failures[0].Code != tterrors.ErrCodeNetwork {
		t.Errorf("failures = %+v", got.Failures)
	}
	if len(got.Skipped) != 1 || got.Skipped[0] != registry.PyPi {
		t.Errorf("skipped = %v", got.Skipped)
	}
}

func TestSearch_RegistryFilter(t *testing.T) {
	crates := &stubRegistry{kind: registry.Crates, caps: registry.Capabilities{Search: true}, pkgs: []registry.Package{{Name: "serde"}}}
	npm := &stubRegistry{kind: registry.Npm, caps: registry.Capabilities{Search: true}, pkgs: []registry.Package{{Name: "serde-js"}}}
	srv := newTestServer(t, crates, npm)

	var got searchResponse
	get(t, srv.URL+"/v1/search?q=serde&registry=npm", &got)
	if len(got.Packages) != 1 || got.Packages[0].Name != "serde-js" {
		t.Errorf("packages = %+v", got.Packages)
	}
}

func TestSearch_EmptyResultIsArray(t *testing.T) {
	srv := newTestServer(t, &stubRegistry{kind: registry.Crates, caps: registry.Capabilities{Search: true}})

	resp, err := http.Get(srv.URL + "/v1/search?q=nothing")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"packages":[]`) {
		t.Errorf("body = %s, want empty packages array", body)
	}
}

func TestSearch_BadRequests(t *testing.T) {
	srv := newTestServer(t, &stubRegistry{kind: registry.Crates, caps: registry.Capabilities{Search: true}})

	tests := []struct {
		name string
		path string
		code tterrors.Code
	}{
		{"missing query", "/v1/search", tterrors.ErrCodeInvalidInput},
		{"unknown registry", "/v1/search?q=serde&registry=maven", tterrors.ErrCodeInvalidRegistry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got errorResponse
			if status := get(t, srv.URL+tt.path, &got); status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
			if got.Code != tt.code {
				t.Errorf("code = %s, want %s", got.Code, tt.code)
			}
		})
	}
}

func TestPackage(t *testing.T) {
	pypi := &stubRegistry{
		kind: registry.PyPi,
		caps: registry.Capabilities{Package: true},
		pkgs: []registry.Package{{Name: "requests", Source: registry.PyPi}},
	}
	srv := newTestServer(t, pypi)

	var got []registry.Package
	if code := get(t, srv.URL+"/v1/packages/pypi/requests", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(got) != 1 || got[0].Name != "requests" {
		t.Errorf("packages = %+v", got)
	}
}

func TestPackage_Statuses(t *testing.T) {
	notFound := tterrors.Wrap(tterrors.ErrCodePackageNotFound, integrations.ErrNotFound, "no such package")
	srv := newTestServer(t,
		&stubRegistry{kind: registry.PyPi, caps: registry.Capabilities{Package: true}, err: notFound},
		&stubRegistry{kind: registry.Npm, caps: registry.Capabilities{Search: true}},
	)

	tests := []struct {
		path string
		want int
	}{
		{"/v1/packages/pypi/missing", http.StatusNotFound},
		{"/v1/packages/npm/left-pad", http.StatusNotImplemented},
		{"/v1/packages/crates/serde", http.StatusNotFound},
		{"/v1/packages/maven/junit", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body errorResponse
			if got := get(t, srv.URL+tt.path, &body); got != tt.want {
				t.Errorf("status = %d, want %d (%+v)", got, tt.want, body)
			}
			if body.Error == "" {
				t.Error("error body is empty")
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code tterrors.Code
		want int
	}{
		{tterrors.ErrCodeInvalidPackage, http.StatusBadRequest},
		{tterrors.ErrCodePackageNotFound, http.StatusNotFound},
		{tterrors.ErrCodeUnsupported, http.StatusNotImplemented},
		{tterrors.ErrCodeNetwork, http.StatusBadGateway},
		{tterrors.ErrCodeTimeout, http.StatusGatewayTimeout},
		{tterrors.ErrCodeStorage, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tterrors.New(tt.code, "x")); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	s := New(aggregate.New(nil), log.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
