// Package httputil provides HTTP plumbing shared by the registry clients.
//
// # Client
//
// [NewClient] returns an *http.Client whose [Transport] stamps every request
// with the tidetrawler User-Agent and reports it to the HTTP hooks registered
// in [github.com/tidetrawler/tidetrawler/pkg/observability]:
//
//	client := httputil.NewClient(10*time.Second, buildinfo.UserAgent())
//	resp, err := client.Get("https://crates.io/api/v1/crates?q=serde")
//
// Response bodies are decompressed transparently; the standard transport
// negotiates gzip when the caller does not set Accept-Encoding itself.
//
// # Retry
//
// [Retry] re-runs an operation while it fails with a [RetryableError]:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    pkgs, err = reg.Search(ctx, query)
//	    return err
//	})
//
// Registry clients wrap 5xx responses and connection failures in
// [RetryableError]; 4xx responses and parse errors are returned as-is and
// never retried. The delay doubles after each failed attempt.
package httputil
