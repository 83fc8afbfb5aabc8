package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// debugHooks logs cache and HTTP events. It is registered under --verbose.
type debugHooks struct {
	logger *log.Logger
}

func (h debugHooks) OnCacheHit(_ context.Context, ns string) {
	h.logger.Debug("cache hit", "registry", ns)
}

func (h debugHooks) OnCacheMiss(_ context.Context, ns string) {
	h.logger.Debug("cache miss", "registry", ns)
}

func (h debugHooks) OnCacheSet(_ context.Context, ns string, size int) {
	h.logger.Debug("cache set", "registry", ns, "bytes", size)
}

func (h debugHooks) OnCacheError(_ context.Context, ns string, err error) {
	h.logger.Debug("cache error", "registry", ns, "err", err)
}

func (h debugHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h debugHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "host", host, "path", path,
		"status", status, "duration", d.Round(time.Millisecond))
}

func (h debugHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}
