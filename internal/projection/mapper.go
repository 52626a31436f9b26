package projection

import (
	"fmt"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
)

// Mapper materializes provider tuples into a query's declared result element.
type Mapper struct {
	proj plan.Projection
}

// NewMapper returns a mapper for p.
func NewMapper(p plan.Projection) *Mapper {
	return &Mapper{proj: p}
}

// Map converts one tuple.
//
//   - entity: the hydrated *schema.Record in Tuple[0]
//   - dto: the DTO constructor's result, or a Value without a constructor
//   - scalar: Tuple[0] coerced to the scalar kind
func (m *Mapper) Map(t provider.Tuple) (any, error) {
	switch m.proj.Kind {
	case plan.ProjectEntity:
		if len(t) == 0 {
			return nil, fmt.Errorf("empty tuple for entity %s", m.proj.Entity)
		}
		rec, ok := t[0].(*schema.Record)
		if !ok {
			return nil, fmt.Errorf("entity %s: tuple holds %T, not a record", m.proj.Entity, t[0])
		}
		return rec, nil

	case plan.ProjectScalar:
		if len(t) != 1 {
			return nil, fmt.Errorf("scalar projection: tuple has %d columns", len(t))
		}
		return Coerce(t[0], m.proj.Scalar)

	case plan.ProjectDTO:
		return m.mapDTO(t)
	}
	return nil, fmt.Errorf("projection %q does not map tuples", m.proj.Kind)
}

// MapAll converts every tuple, preserving order. The result is never nil.
func (m *Mapper) MapAll(tuples []provider.Tuple) ([]any, error) {
	out := make([]any, 0, len(tuples))
	for i, t := range tuples {
		v, err := m.Map(t)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Mapper) mapDTO(t provider.Tuple) (any, error) {
	dto := m.proj.DTO
	if len(t) != len(dto.Params) {
		return nil, fmt.Errorf("%s: tuple has %d columns, constructor takes %d", dto.Name, len(t), len(dto.Params))
	}
	values := make([]any, len(t))
	for i, p := range dto.Params {
		v, err := Coerce(t[i], p.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", dto.Name, p.Name, err)
		}
		values[i] = v
	}
	if dto.New != nil {
		return dto.New(values)
	}

	names := make([]string, len(dto.Params))
	for i, p := range dto.Params {
		names[i] = p.Name
	}
	return Value{Type: dto.Name, Names: names, Values: values}, nil
}
