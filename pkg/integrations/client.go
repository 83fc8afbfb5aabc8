package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/tidetrawler/tidetrawler/pkg/buildinfo"
	"github.com/tidetrawler/tidetrawler/pkg/cache"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/httputil"
	"github.com/tidetrawler/tidetrawler/pkg/observability"
)

// Options configures the shared registry [Client].
// The zero value is usable.
type Options struct {
	HTTPClient *http.Client  // Nil builds one from Timeout and UserAgent
	Timeout    time.Duration // Request timeout (default 10s)
	UserAgent  string        // Default "tidetrawler/<version>"
	Logger     *log.Logger   // Default log.Default()

	// MaxAge bounds the age of cached responses that are served.
	// Zero serves cached responses of any age.
	MaxAge time.Duration

	// Refresh skips cache reads. Fresh responses are still written.
	Refresh bool
}

// Client provides shared HTTP functionality for all registry API clients.
// It owns the cache hit/miss flow so each registry only describes its URLs
// and how to parse a response body.
//
// A Client is safe for concurrent use.
type Client struct {
	http      *http.Client
	store     *cache.Store
	namespace string
	logger    *log.Logger
	maxAge    time.Duration
	refresh   bool
}

// NewClient creates a Client that caches responses in store.
// A nil store disables caching. The namespace names the registry in logs,
// observability events and the cache subdirectory it may create.
func NewClient(store *cache.Store, namespace string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		ua := opts.UserAgent
		if ua == "" {
			ua = buildinfo.UserAgent()
		}
		hc = httputil.NewClient(opts.Timeout, ua)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		http:      hc,
		store:     store,
		namespace: namespace,
		logger:    logger.With("registry", namespace),
		maxAge:    opts.MaxAge,
		refresh:   opts.Refresh,
	}
}

// Namespace returns the registry namespace.
func (c *Client) Namespace() string { return c.namespace }

// Store returns the cache store, or nil when caching is disabled.
func (c *Client) Store() *cache.Store { return c.store }

// Logger returns the client's logger.
func (c *Client) Logger() *log.Logger { return c.logger }

// EnsureNamespace creates the registry's cache subdirectory.
func (c *Client) EnsureNamespace() (string, error) {
	if c.store == nil {
		return "", tterrors.New(tterrors.ErrCodeStorage, "caching is disabled")
	}
	return c.store.EnsureNamespace(c.namespace)
}

// Cached fetches url and hands the body to parse, going through the cache
// when cacheable is true.
//
// A cached record is served when it is younger than the configured max age
// and parse accepts it; content that fails to parse is treated as a miss and
// refetched. After a live fetch the body is parsed first and saved only if it
// parsed. Failing to save is logged and does not fail the call.
//
// parse must fully replace whatever it decodes into, since it may run twice.
func (c *Client) Cached(ctx context.Context, url string, cacheable bool, parse func([]byte) error) error {
	hooks := observability.Cache()
	cacheable = cacheable && c.store != nil

	if cacheable && !c.refresh {
		if rec, ok := c.store.Lookup(url, cache.LookupOptions{MaxAge: c.maxAge}); ok {
			err := parse([]byte(rec.Content))
			if err == nil {
				hooks.OnCacheHit(ctx, c.namespace)
				c.logger.Debug("cache hit", "url", url, "age", time.Since(rec.UpdatedAt).Round(time.Second))
				return nil
			}
			c.logger.Debug("cached response unreadable, refetching", "url", url, "err", err)
		}
		hooks.OnCacheMiss(ctx, c.namespace)
	}

	body, etag, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := parse(body); err != nil {
		return parseError(err, url)
	}

	if cacheable {
		cacheID := etag
		if cacheID == "" {
			cacheID = uuid.NewString()
		}
		if err := c.store.Save(cache.NewRecord(url, cacheID, string(body))); err != nil {
			hooks.OnCacheError(ctx, c.namespace, err)
			c.logger.Warn("cache save failed", "url", url, "err", err)
		} else {
			hooks.OnCacheSet(ctx, c.namespace, len(body))
		}
	}
	return nil
}

// Get performs an uncached HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	body, _, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return parseError(err, url)
	}
	return nil
}

// Fetch performs a GET request and returns the response body and ETag.
//
// A 404 is reported as PACKAGE_NOT_FOUND wrapping [ErrNotFound]. Transport
// failures and other non-200 statuses are NETWORK_ERROR (or TIMEOUT) wrapping
// [ErrNetwork]; the transient ones also carry an [httputil.RetryableError].
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", tterrors.Wrap(tterrors.ErrCodeInvalidInput, err, "build request for %s", url)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("fetching", "url", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", transportError(ctx, err, url)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		if errors.Is(err, ErrNotFound) {
			return nil, "", tterrors.Wrap(tterrors.ErrCodePackageNotFound, err, "GET %s", url)
		}
		return nil, "", tterrors.Wrap(tterrors.ErrCodeNetwork, err, "GET %s", url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", transportError(ctx, err, url)
	}
	return body, resp.Header.Get("ETag"), nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

// transportError classifies a failed round trip or body read.
// Cancellation by the caller is final; everything else may be retried.
func transportError(ctx context.Context, err error, url string) error {
	if ctx.Err() != nil {
		return tterrors.Wrap(tterrors.ErrCodeNetwork, fmt.Errorf("%w: %w", ErrNetwork, ctx.Err()), "GET %s", url)
	}
	code := tterrors.ErrCodeNetwork
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		code = tterrors.ErrCodeTimeout
	}
	return tterrors.Wrap(code, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}, "GET %s", url)
}

func parseError(err error, url string) error {
	if tterrors.GetCode(err) != "" {
		return err
	}
	return tterrors.Wrap(tterrors.ErrCodeParse, err, "parse response from %s", url)
}
