package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
)

// Save persists rec: a record without an id is inserted, a record with one
// is merged. Runs in the unit of work from ctx, or in its own transaction.
func (r *Repository) Save(ctx context.Context, rec *schema.Record) error {
	if rec.Entity != r.entity.Name {
		return fmt.Errorf("%s: cannot save %s", r.name, rec.Entity)
	}
	return r.write(ctx, func(ctx context.Context, uow provider.UnitOfWork) error {
		return uow.Persist(ctx, rec)
	})
}

// Delete removes rec.
func (r *Repository) Delete(ctx context.Context, rec *schema.Record) error {
	if rec.Entity != r.entity.Name {
		return fmt.Errorf("%s: cannot delete %s", r.name, rec.Entity)
	}
	return r.write(ctx, func(ctx context.Context, uow provider.UnitOfWork) error {
		return uow.Remove(ctx, rec)
	})
}

// FindByID returns the record with id, if any.
func (r *Repository) FindByID(ctx context.Context, id int64) (*schema.Record, bool, error) {
	uow, ok := provider.FromContext(ctx)
	if !ok {
		var err error
		uow, err = r.provider.Begin(ctx, provider.Options{})
		if err != nil {
			return nil, false, err
		}
		defer uow.Rollback(ctx)
	}
	return uow.Find(ctx, r.entity.Name, id)
}

// FindAll returns every record ordered by id.
func (r *Repository) FindAll(ctx context.Context) ([]*schema.Record, error) {
	res, err := r.exec.Query(ctx, r.crud["findAll"], nil)
	if err != nil {
		return nil, err
	}
	return convert[*schema.Record](r.crud["findAll"].Method, res.Items)
}

// Count returns the number of records.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	res, err := r.exec.Query(ctx, r.crud["count"], nil)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// write runs fn in the unit of work from ctx, or in a transaction of its own
// that commits when fn succeeds.
func (r *Repository) write(ctx context.Context, fn func(context.Context, provider.UnitOfWork) error) error {
	if uow, ok := provider.FromContext(ctx); ok {
		return fn(ctx, uow)
	}
	return WithinUnitOfWork(ctx, r.provider, func(ctx context.Context) error {
		uow, _ := provider.FromContext(ctx)
		return fn(ctx, uow)
	})
}

// WithinUnitOfWork runs fn in a new transactional unit of work carried by
// the context it receives. The unit commits when fn returns nil and rolls
// back when fn returns an error or panics.
func WithinUnitOfWork(ctx context.Context, p provider.Provider, fn func(ctx context.Context) error) (err error) {
	uow, err := p.Begin(ctx, provider.Options{Transactional: true})
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = uow.Rollback(ctx)
			panic(v)
		}
	}()

	if err := fn(provider.WithUnitOfWork(ctx, uow)); err != nil {
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return errors.Join(err, uow.Rollback(ctx))
	}
	return nil
}
