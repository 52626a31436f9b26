package plan

import (
	"fmt"

	"github.com/roach88/repokit/internal/schema"
)

// DTOParam is one positional constructor parameter of a DTO.
type DTOParam struct {
	Name string
	Kind schema.Kind
}

// DTO is a non-entity result type built from positional values.
//
// New receives one value per parameter, already coerced to the parameter's
// kind (int64, string, bool or nil). A DTO without New is materialized as a
// projection.Value.
type DTO struct {
	Name   string
	Params []DTOParam
	New    func(values []any) (any, error)
}

// DTORegistry holds DTO declarations by name.
type DTORegistry struct {
	dtos map[string]*DTO
}

// NewDTORegistry validates and registers DTOs.
func NewDTORegistry(dtos ...DTO) (*DTORegistry, error) {
	r := &DTORegistry{dtos: make(map[string]*DTO, len(dtos))}
	for i := range dtos {
		d := dtos[i]
		if d.Name == "" {
			return nil, fmt.Errorf("dto #%d: missing name", i)
		}
		if _, dup := r.dtos[d.Name]; dup {
			return nil, fmt.Errorf("dto %s: duplicate name", d.Name)
		}
		if len(d.Params) == 0 {
			return nil, fmt.Errorf("dto %s: no parameters", d.Name)
		}
		seen := map[string]bool{}
		for _, p := range d.Params {
			if seen[p.Name] {
				return nil, fmt.Errorf("dto %s: duplicate parameter %q", d.Name, p.Name)
			}
			seen[p.Name] = true
			if !p.Kind.Valid() {
				return nil, fmt.Errorf("dto %s: parameter %q has unsupported kind %q", d.Name, p.Name, p.Kind)
			}
		}
		d.Params = append([]DTOParam(nil), d.Params...)
		r.dtos[d.Name] = &d
	}
	return r, nil
}

// Lookup returns the DTO with the given name. A nil registry holds no DTOs.
func (r *DTORegistry) Lookup(name string) (*DTO, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.dtos[name]
	return d, ok
}

// Bind attaches a constructor to a registered DTO. Declarations loaded from
// files carry no constructors; callers bind them in code.
func (r *DTORegistry) Bind(name string, fn func(values []any) (any, error)) error {
	d, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("dto %s: not registered", name)
	}
	d.New = fn
	return nil
}
