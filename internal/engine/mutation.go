package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/telemetry"
)

// Mutate runs a bulk UPDATE/DELETE/INSERT or a derived delete and returns the
// number of affected rows.
//
// The unit of work in ctx must be transactional. The provider flushes pending
// changes before the statement runs. Afterwards the identity cache is
// invalidated as declared: every entry, the affected type only, or nothing.
// With no invalidation, managed instances keep their pre-mutation state.
func (e *Executor) Mutate(ctx context.Context, spec *plan.BulkMutationSpec, args []any) (n int64, err error) {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, e.tracer, telemetry.SpanMutation, spec.Method, string(plan.ResultModifying))
	defer func() {
		telemetry.End(span, err, attribute.Int64("repokit.affected", n))
		e.metrics.ObserveQuery(spec.Method, string(plan.ResultModifying), err, time.Since(start))
	}()

	uow, ok := provider.FromContext(ctx)
	if !ok || !uow.Transactional() {
		return 0, &NoActiveTransactionError{Method: spec.Method}
	}
	inv, err := bindArgs(spec.Method, spec.Params, args)
	if err != nil {
		return 0, err
	}

	stmt := &provider.Statement{
		Method: spec.Method,
		Entity: spec.AffectedType,
	}
	if spec.IsDerivedDelete() {
		stmt.Kind = provider.StatementDelete
		stmt.Predicate = spec.Predicate
		stmt.Args = inv.args
	} else {
		stmt.Kind = provider.StatementMutation
		stmt.Text = spec.StatementText
		stmt.Named = named(spec.Params, inv.args, spec.Placeholders)
	}

	n, err = uow.ExecuteMutation(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", spec.Method, err)
	}

	if spec.InvalidatesIdentityCache {
		switch spec.Invalidation {
		case plan.InvalidateAll:
			uow.Identity().Clear()
		case plan.InvalidateType:
			uow.Identity().Invalidate(spec.AffectedType)
		}
	}
	e.metrics.AddMutationRows(spec.Method, n)
	e.logger.Info("bulk mutation executed",
		"method", spec.Method,
		"uow", uow.ID(),
		"affected", n,
		"invalidation", string(spec.Invalidation))
	return n, nil
}
