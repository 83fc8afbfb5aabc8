// Package aggregate fans registry operations out to several registries at
// once and merges what comes back.
//
// A failing registry never hides the results of the others: its error is
// recorded as a [Failure] next to the packages that did arrive. Registries
// whose [registry.Capabilities] lack the operation are skipped without a
// request.
//
//	agg := aggregate.New(regs, aggregate.WithRetry(3, time.Second))
//	res := agg.Search(ctx, "serde")
//	for _, f := range res.Failures {
//	    log.Warn("registry failed", "registry", f.Source, "err", f.Err)
//	}
//	return res.Packages
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/httputil"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

// Failure records one registry's error.
type Failure struct {
	Source registry.SourceKind
	Err    error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Source, f.Err) }
func (f Failure) Unwrap() error { return f.Err }

// Result is the merged outcome of one aggregated operation.
// Packages are grouped by registry, in the order the registries were given.
type Result struct {
	Packages []registry.Package
	Failures []Failure
	Skipped  []registry.SourceKind
}

// Err joins all failures, or returns nil when every registry succeeded.
func (r Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Aggregator runs operations against a fixed set of registries.
type Aggregator struct {
	regs        []registry.Registry
	logger      *log.Logger
	concurrency int
	attempts    int
	delay       time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger for per-registry progress and failures.
func WithLogger(l *log.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConcurrency bounds the number of registries queried at once.
// Zero or less means no bound.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

// WithRetry retries transient registry failures up to attempts times in
// total, starting with delay and doubling it after each attempt.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(a *Aggregator) {
		a.attempts = attempts
		a.delay = delay
	}
}

// New creates an Aggregator over regs.
func New(regs []registry.Registry, opts ...Option) *Aggregator {
	a := &Aggregator{
		regs:     regs,
		logger:   log.Default(),
		attempts: 1,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registries returns the registries the aggregator queries.
func (a *Aggregator) Registries() []registry.Registry { return a.regs }

// Select returns an Aggregator over the registries of the given kinds that
// shares a's settings. With no kinds it returns a.
func (a *Aggregator) Select(kinds ...registry.SourceKind) *Aggregator {
	if len(kinds) == 0 {
		return a
	}
	sub := *a
	sub.regs = nil
	for _, r := range a.regs {
		if slices.Contains(kinds, r.Kind()) {
			sub.regs = append(sub.regs, r)
		}
	}
	return &sub
}

// Search runs query against every registry that supports search.
func (a *Aggregator) Search(ctx context.Context, query string) Result {
	if err := tterrors.ValidateQuery(query); err != nil {
		return a.rejectAll(err, func(c registry.Capabilities) bool { return c.Search })
	}
	return a.run(ctx, "search",
		func(c registry.Capabilities) bool { return c.Search },
		func(ctx context.Context, r registry.Registry) ([]registry.Package, error) {
			return r.Search(ctx, query)
		})
}

// Package looks name up in every registry that supports package lookups.
func (a *Aggregator) Package(ctx context.Context, name string) Result {
	if err := tterrors.ValidatePackageName(name); err != nil {
		return a.rejectAll(err, func(c registry.Capabilities) bool { return c.Package })
	}
	return a.run(ctx, "package",
		func(c registry.Capabilities) bool { return c.Package },
		func(ctx context.Context, r registry.Registry) ([]registry.Package, error) {
			return r.Package(ctx, name)
		})
}

type outcome struct {
	pkgs    []registry.Package
	err     error
	skipped bool
}

func (a *Aggregator) run(
	ctx context.Context,
	op string,
	supports func(registry.Capabilities) bool,
	call func(context.Context, registry.Registry) ([]registry.Package, error),
) Result {
	outcomes := make([]outcome, len(a.regs))

	g, gctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}

	for i, reg := range a.regs {
		if !supports(reg.Capabilities()) {
			outcomes[i].skipped = true
			continue
		}
		g.Go(func() error {
			start := time.Now()
			var pkgs []registry.Package
			err := httputil.Retry(gctx, a.attempts, a.delay, func() error {
				var err error
				pkgs, err = call(gctx, reg)
				return err
			})

			logger := a.logger.With("registry", reg.Kind().Slug(), "op", op)
			if err != nil {
				logger.Debug("registry failed", "err", err, "elapsed", time.Since(start))
			} else {
				logger.Debug("registry done", "packages", len(pkgs), "elapsed", time.Since(start))
			}
			outcomes[i] = outcome{pkgs: pkgs, err: err}
			// Errors are kept per registry and never returned to the group.
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i, o := range outcomes {
		kind := a.regs[i].Kind()
		switch {
		case o.skipped:
			res.Skipped = append(res.Skipped, kind)
		case o.err != nil:
			res.Failures = append(res.Failures, Failure{Source: kind, Err: o.err})
		default:
			res.Packages = append(res.Packages, o.pkgs...)
		}
	}
	return res
}

// rejectAll fails every registry that would have run with err.
func (a *Aggregator) rejectAll(err error, supports func(registry.Capabilities) bool) Result {
	var res Result
	for _, reg := range a.regs {
		if supports(reg.Capabilities()) {
			res.Failures = append(res.Failures, Failure{Source: reg.Kind(), Err: err})
		} else {
			res.Skipped = append(res.Skipped, reg.Kind())
		}
	}
	return res
}
