package provider

import "context"

type ctxKey struct{}

// WithUnitOfWork returns a context carrying uow. Executors use it in place of
// an implicit unit of work.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, uow)
}

// FromContext returns the unit of work carried by ctx, if any.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	uow, ok := ctx.Value(ctxKey{}).(UnitOfWork)
	return uow, ok && uow != nil
}
