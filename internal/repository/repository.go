// Package repository assembles bound method specs into callable repositories.
//
// A Repository owns the method table of one entity: built-in CRUD methods
// (findAll, count) plus every declared method, each bound once by New and
// executed on demand by the engine.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/repokit/internal/engine"
	"github.com/roach88/repokit/internal/metrics"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
)

// CodeUnknownMethod is reported for invocations of undeclared methods.
const CodeUnknownMethod = "UNKNOWN_METHOD"

// UnknownMethodError is returned when a method name is not in the table.
type UnknownMethodError struct {
	Repository string
	Method     string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("%s has no method %q", e.Repository, e.Method)
}

// ErrorCode returns CodeUnknownMethod.
func (e *UnknownMethodError) ErrorCode() string { return CodeUnknownMethod }

// Declaration declares one repository.
type Declaration struct {
	Name    string
	Entity  string
	Methods []plan.MethodDecl
}

// builtins are bound for every repository unless a declared method of the
// same name replaces them.
var builtins = []plan.MethodDecl{
	{Name: "findAll"},
	{Name: "count"},
}

// Repository is the method table of one entity. Safe for concurrent use:
// specs are immutable and units of work travel in the context.
type Repository struct {
	name     string
	entity   *schema.Entity
	specs    map[string]plan.Spec
	crud     map[string]*plan.QuerySpec
	provider provider.Provider
	exec     *engine.Executor
	logger   *slog.Logger
}

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger for binding and execution.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records executions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer wraps executions in spans from t.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// New binds every method of decl. All bind errors are reported together.
func New(decl Declaration, reg *schema.Registry, dtos *plan.DTORegistry, p provider.Provider, opts ...Option) (*Repository, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	e, ok := reg.Entity(decl.Entity)
	if !ok {
		return nil, fmt.Errorf("repository %s: unknown entity %q", decl.Name, decl.Entity)
	}
	name := decl.Name
	if name == "" {
		name = e.Name + "Repository"
	}

	r := &Repository{
		name:     name,
		entity:   e,
		specs:    map[string]plan.Spec{},
		crud:     map[string]*plan.QuerySpec{},
		provider: p,
		exec: engine.New(p, reg,
			engine.WithLogger(o.logger),
			engine.WithMetrics(o.metrics),
			engine.WithTracer(o.tracer)),
		logger: o.logger.With("repository", name),
	}

	bindOpts := []plan.BindOption{plan.WithLogger(r.logger)}
	var errs []error
	for _, m := range builtins {
		spec, err := plan.Bind(m, e.Name, reg, dtos, bindOpts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("built-in %s: %w", m.Name, err))
			continue
		}
		r.crud[m.Name] = spec.(*plan.QuerySpec)
		r.specs[m.Name] = spec
	}

	seen := map[string]bool{}
	for _, m := range decl.Methods {
		if seen[m.Name] {
			errs = append(errs, &plan.InvalidDeclarationError{Method: m.Name, Field: "name", Reason: "declared twice"})
			continue
		}
		seen[m.Name] = true
		spec, err := plan.Bind(m, e.Name, reg, dtos, bindOpts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.specs[m.Name] = spec
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("repository %s: %w", name, err)
	}

	r.logger.Debug("repository bound", "entity", e.Name, "methods", len(r.specs))
	return r, nil
}

// Name returns the repository name.
func (r *Repository) Name() string { return r.name }

// Entity returns the repository's entity name.
func (r *Repository) Entity() string { return r.entity.Name }

// Methods returns the method names in sorted order.
func (r *Repository) Methods() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec returns the bound spec of a method.
func (r *Repository) Spec(method string) (plan.Spec, bool) {
	s, ok := r.specs[method]
	return s, ok
}

// Invoke executes a method with positional arguments.
func (r *Repository) Invoke(ctx context.Context, method string, args ...any) (*engine.Result, error) {
	spec, ok := r.specs[method]
	if !ok {
		return nil, &UnknownMethodError{Repository: r.name, Method: method}
	}
	return r.exec.Execute(ctx, spec, args)
}
