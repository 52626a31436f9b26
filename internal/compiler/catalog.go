package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/repository"
	"github.com/roach88/repokit/internal/schema"
)

// Catalog is every declaration of one CUE instance, in declaration order.
type Catalog struct {
	Entities     []schema.Entity
	DTOs         []plan.DTO
	Repositories []repository.Declaration

	// positions of declarations keyed by "entity.Member",
	// "repository.MemberRepository.methods.findByAge" and so on
	positions map[string]token.Pos
}

// Pos returns the source position of a declaration path.
func (c *Catalog) Pos(path string) token.Pos {
	return c.positions[path]
}

// Repository returns the declaration with the given name.
func (c *Catalog) Repository(name string) (*repository.Declaration, bool) {
	for i := range c.Repositories {
		if c.Repositories[i].Name == name {
			return &c.Repositories[i], true
		}
	}
	return nil, false
}

// Registry builds the entity registry.
func (c *Catalog) Registry() (*schema.Registry, error) {
	return schema.NewRegistry(c.Entities...)
}

// DTORegistry builds the DTO registry.
func (c *Catalog) DTORegistry() (*plan.DTORegistry, error) {
	return plan.NewDTORegistry(c.DTOs...)
}

// Bind binds every repository against p. Errors of all repositories are
// reported together.
func (c *Catalog) Bind(p provider.Provider, opts ...repository.Option) (map[string]*repository.Repository, error) {
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	dtos, err := c.DTORegistry()
	if err != nil {
		return nil, err
	}
	repos := make(map[string]*repository.Repository, len(c.Repositories))
	var errs []error
	for _, decl := range c.Repositories {
		r, err := repository.New(decl, reg, dtos, p, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		repos[r.Name()] = r
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return repos, nil
}

// Compile extracts entity, dto and repository declarations from v. With
// failFast the first error stops compilation; otherwise every error is
// collected and the catalog holds what compiled.
func Compile(v cue.Value, failFast bool) (*Catalog, []error) {
	c := &Catalog{positions: map[string]token.Pos{}}
	var errs []error

	sections := []struct {
		name    string
		compile func(cue.Value) error
	}{
		{"entity", func(v cue.Value) error {
			e, err := CompileEntity(v)
			if err == nil {
				c.Entities = append(c.Entities, *e)
			}
			return err
		}},
		{"dto", func(v cue.Value) error {
			d, err := CompileDTO(v)
			if err == nil {
				c.DTOs = append(c.DTOs, *d)
			}
			return err
		}},
		{"repository", func(v cue.Value) error {
			r, err := CompileRepository(v)
			if err == nil {
				c.Repositories = append(c.Repositories, *r)
				c.recordMethods(r.Name, v)
			}
			return err
		}},
	}

	for _, sec := range sections {
		secVal := v.LookupPath(cue.ParsePath(sec.name))
		if !secVal.Exists() {
			continue
		}
		iter, err := secVal.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
			if failFast {
				return c, errs
			}
			continue
		}
		for iter.Next() {
			path := sec.name + "." + iter.Label()
			c.positions[path] = iter.Value().Pos()
			if err := sec.compile(iter.Value()); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				if failFast {
					return c, errs
				}
			}
		}
	}

	if len(c.Entities) == 0 && len(errs) == 0 {
		errs = append(errs, &CompileError{Field: "entity", Message: "no entities declared", Pos: v.Pos()})
	}
	return c, errs
}

func (c *Catalog) recordMethods(repo string, v cue.Value) {
	iter, err := v.LookupPath(cue.ParsePath("methods")).Fields()
	if err != nil {
		return
	}
	for iter.Next() {
		c.positions["repository."+repo+".methods."+iter.Label()] = iter.Value().Pos()
	}
}

// BuildDir loads every .cue file of dir as one CUE instance.
func BuildDir(dir string) (cue.Value, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return cue.Value{}, err
	}
	if !info.IsDir() {
		return cue.Value{}, fmt.Errorf("not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, errors.New("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}

// LoadDir builds dir and compiles it, failing on the first error.
func LoadDir(dir string) (*Catalog, error) {
	v, err := BuildDir(filepath.Clean(dir))
	if err != nil {
		return nil, err
	}
	c, errs := Compile(v, true)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return c, nil
}
