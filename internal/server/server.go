// Package server exposes registry search and package lookups as a JSON API.
//
// Routes:
//
//	GET /healthz
//	GET /v1/registries
//	GET /v1/search?q=<query>[&registry=crates,npm]
//	GET /v1/packages/{registry}/{name}
//
// Search answers 200 whenever the query is valid; per-registry failures are
// reported in the body next to the packages that did arrive. Package lookups
// go to a single registry and map its error to an HTTP status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tidetrawler/tidetrawler/pkg/aggregate"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// serve context is cancelled.
const shutdownTimeout = 5 * time.Second

// Server routes API requests to an aggregator.
type Server struct {
	Router *chi.Mux
	agg    *aggregate.Aggregator
	logger *log.Logger
}

// New creates a Server answering from agg. A nil logger uses log.Default().
func New(agg *aggregate.Aggregator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, agg: agg, logger: logger}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("write health check response", "err", err)
		}
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/registries", s.handleRegistries)
		r.Get("/search", s.handleSearch)
		r.Get("/packages/{registry}/{name}", s.handlePackage)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// registryInfo describes one enabled registry.
type registryInfo struct {
	Kind         registry.SourceKind   `json:"kind"`
	Capabilities registry.Capabilities `json:"capabilities"`
}

// failureInfo is the wire form of an [aggregate.Failure].
type failureInfo struct {
	Source registry.SourceKind `json:"source"`
	Code   tterrors.Code       `json:"code,omitempty"`
	Error  string              `json:"error"`
}

type searchResponse struct {
	Packages []registry.Package    `json:"packages"`
	Failures []failureInfo         `json:"failures,omitempty"`
	Skipped  []registry.SourceKind `json:"skipped,omitempty"`
}

type errorResponse struct {
	Code  tterrors.Code `json:"code,omitempty"`
	Error string        `json:"error"`
}

func (s *Server) handleRegistries(w http.ResponseWriter, r *http.Request) {
	regs := s.agg.Registries()
	out := make([]registryInfo, len(regs))
	for i, reg := range regs {
		out[i] = registryInfo{Kind: reg.Kind(), Capabilities: reg.Capabilities()}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if err := tterrors.ValidateQuery(query); err != nil {
		s.writeError(w, err)
		return
	}

	var kinds []registry.SourceKind
	if raw := r.URL.Query().Get("registry"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			k, err := registry.ParseSourceKind(name)
			if err != nil {
				s.writeError(w, err)
				return
			}
			kinds = append(kinds, k)
		}
	}

	res := s.agg.Select(kinds...).Search(r.Context(), query)

	resp := searchResponse{Packages: res.Packages, Skipped: res.Skipped}
	if resp.Packages == nil {
		resp.Packages = []registry.Package{}
	}
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, failureInfo{
			Source: f.Source,
			Code:   tterrors.GetCode(f.Err),
			Error:  tterrors.UserMessage(f.Err),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	kind, err := registry.ParseSourceKind(chi.URLParam(r, "registry"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")

	sub := s.agg.Select(kind)
	if len(sub.Registries()) == 0 {
		s.writeError(w, tterrors.New(tterrors.ErrCodeNotFound, "registry %s is not enabled", kind.Slug()))
		return
	}

	res := sub.Package(r.Context(), name)
	switch {
	case len(res.Failures) > 0:
		s.writeError(w, res.Failures[0].Err)
	case len(res.Skipped) > 0:
		s.writeError(w, tterrors.Unsupported(kind.Slug(), "package lookups"))
	default:
		pkgs := res.Packages
		if pkgs == nil {
			pkgs = []registry.Package{}
		}
		s.writeJSON(w, http.StatusOK, pkgs)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Code: tterrors.GetCode(err), Error: tterrors.UserMessage(err)})
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch tterrors.GetCode(err) {
	case tterrors.ErrCodeInvalidInput, tterrors.ErrCodeInvalidPackage, tterrors.ErrCodeInvalidRegistry:
		return http.StatusBadRequest
	case tterrors.ErrCodeNotFound, tterrors.ErrCodePackageNotFound:
		return http.StatusNotFound
	case tterrors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case tterrors.ErrCodeNetwork, tterrors.ErrCodeParse:
		return http.StatusBadGateway
	case tterrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger logs one line per request at debug level.
func requestLogger(l *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Millisecond),
				"request_id", chimw.GetReqID(r.Context()))
		})
	}
}
