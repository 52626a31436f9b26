package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/repokit/internal/metrics"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
)

// Executor runs bound specs against a persistence provider.
//
// Thread-safety model:
//   - An Executor holds no per-invocation state and is safe for concurrent use.
//   - Units of work are not; each goroutine passes its own through the context.
type Executor struct {
	provider provider.Provider
	reg      *schema.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records executions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithTracer wraps provider round-trips in spans from t.
// Default: a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an Executor over p. reg must be the registry the specs were
// bound against.
func New(p provider.Provider, reg *schema.Registry, opts ...Option) *Executor {
	e := &Executor{
		provider: p,
		reg:      reg,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute dispatches on the spec type. Mutations report their affected row
// count in Result.Affected.
func (e *Executor) Execute(ctx context.Context, spec plan.Spec, args []any) (*Result, error) {
	switch s := spec.(type) {
	case *plan.QuerySpec:
		return e.Query(ctx, s, args)
	case *plan.BulkMutationSpec:
		n, err := e.Mutate(ctx, s, args)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: plan.ResultModifying, Affected: n}, nil
	}
	return nil, unsupportedSpec(spec)
}

// unitOfWork returns the unit in ctx, or begins an implicit non-transactional
// one. release must be called on every exit path; it is a no-op for a unit
// the caller owns.
func (e *Executor) unitOfWork(ctx context.Context) (uow provider.UnitOfWork, release func(), err error) {
	if uow, ok := provider.FromContext(ctx); ok {
		return uow, func() {}, nil
	}
	uow, err = e.provider.Begin(ctx, provider.Options{})
	if err != nil {
		return nil, nil, err
	}
	return uow, func() {
		if err := uow.Rollback(ctx); err != nil {
			e.logger.Warn("release implicit unit of work", "uow", uow.ID(), "error", err)
		}
	}, nil
}
