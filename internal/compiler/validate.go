package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/repository"
	"github.com/roach88/repokit/internal/schema"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported value passed to Validate

	// Entity and DTO errors (E101-E109)
	ErrNoProperties        = "E101" // entity or dto declares nothing
	ErrUnknownIDProperty   = "E102" // id names no property
	ErrUnknownTarget       = "E103" // association target is not an entity
	ErrInvalidFieldType    = "E104" // invalid property or parameter type
	ErrDuplicateName       = "E105" // duplicate declaration or member name
	ErrInvalidCardinality  = "E106" // cardinality is not to_one or to_many
	ErrInvalidName         = "E107" // malformed declaration or member name
	ErrInvalidRegistration = "E108" // registry rejected the declarations

	// Repository errors (E110-E119)
	ErrUnknownEntity       = "E110" // repository entity is not declared
	ErrInvalidResultKind   = "E111" // unknown result kind
	ErrInvalidParamType    = "E112" // unknown parameter type
	ErrInvalidInvalidation = "E113" // invalidate is not none, type or all
	ErrInvalidLockMode     = "E114" // unknown lock mode
	ErrBindFailed          = "E115" // method did not bind
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks declarations against the schema rules and returns every
// error found (does not fail-fast). A *Catalog is also bound: each method
// that would fail plan binding yields an E115 error.
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case *Catalog:
		return validateCatalog(d)
	case *schema.Entity:
		return validateEntity(d, nil)
	case schema.Entity:
		return validateEntity(&d, nil)
	case *repository.Declaration:
		return validateRepository(d, nil)
	case repository.Declaration:
		return validateRepository(&d, nil)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported declaration type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

var (
	typeNamePattern   = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)
	memberNamePattern = regexp.MustCompile(`^[a-z][A-Za-z0-9_]*$`)
)

func validateCatalog(c *Catalog) []ValidationError {
	var errs []ValidationError
	line := func(path string) int {
		if pos := c.Pos(path); pos.IsValid() {
			return pos.Line()
		}
		return 0
	}

	entities := map[string]bool{}
	for i := range c.Entities {
		e := &c.Entities[i]
		path := "entity." + e.Name
		if entities[e.Name] {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("duplicate entity %q", e.Name), Code: ErrDuplicateName, Line: line(path)})
		}
		entities[e.Name] = true
	}

	for i := range c.Entities {
		e := &c.Entities[i]
		for _, ve := range validateEntity(e, entities) {
			ve.Field = "entity." + e.Name + "." + ve.Field
			ve.Line = line("entity." + e.Name)
			errs = append(errs, ve)
		}
	}

	dtos := map[string]bool{}
	for _, d := range c.DTOs {
		path := "dto." + d.Name
		if dtos[d.Name] || entities[d.Name] {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("duplicate type name %q", d.Name), Code: ErrDuplicateName, Line: line(path)})
		}
		dtos[d.Name] = true
		if len(d.Params) == 0 {
			errs = append(errs, ValidationError{Field: path + ".params", Message: "dto declares no parameters", Code: ErrNoProperties, Line: line(path)})
		}
		for _, p := range d.Params {
			if !p.Kind.Valid() {
				errs = append(errs, ValidationError{Field: path + ".params." + p.Name, Message: fmt.Sprintf("invalid type %q", p.Kind), Code: ErrInvalidFieldType, Line: line(path)})
			}
		}
	}

	repos := map[string]bool{}
	for i := range c.Repositories {
		r := &c.Repositories[i]
		path := "repository." + r.Name
		if repos[r.Name] {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("duplicate repository %q", r.Name), Code: ErrDuplicateName, Line: line(path)})
		}
		repos[r.Name] = true
		for _, ve := range validateRepository(r, entities) {
			ve.Line = line(path)
			if parts := strings.SplitN(ve.Field, ".", 3); len(parts) >= 2 && parts[0] == "methods" {
				if l := line(path + ".methods." + parts[1]); l > 0 {
					ve.Line = l
				}
			}
			ve.Field = path + "." + ve.Field
			errs = append(errs, ve)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return append(errs, bindCatalog(c, line)...)
}

// bindCatalog binds every method once the declarations are structurally sound.
func bindCatalog(c *Catalog, line func(string) int) []ValidationError {
	reg, err := c.Registry()
	if err != nil {
		return []ValidationError{{Field: "entity", Message: err.Error(), Code: ErrInvalidRegistration}}
	}
	dtos, err := c.DTORegistry()
	if err != nil {
		return []ValidationError{{Field: "dto", Message: err.Error(), Code: ErrInvalidRegistration}}
	}

	var errs []ValidationError
	for _, r := range c.Repositories {
		for _, m := range r.Methods {
			if _, err := plan.Bind(m, r.Entity, reg, dtos); err != nil {
				path := "repository." + r.Name + ".methods." + m.Name
				errs = append(errs, ValidationError{
					Field:   path,
					Message: bindMessage(err),
					Code:    ErrBindFailed,
					Line:    line(path),
				})
			}
		}
	}
	return errs
}

// bindMessage prefixes the bind error with its code when it has one.
func bindMessage(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode() + ": " + err.Error()
	}
	return err.Error()
}

// validateEntity checks one entity. entities, when non-nil, is the set of
// declared entity names used to check association targets.
func validateEntity(e *schema.Entity, entities map[string]bool) []ValidationError {
	var errs []ValidationError

	if !typeNamePattern.MatchString(e.Name) {
		errs = append(errs, ValidationError{Field: "name", Message: fmt.Sprintf("entity name %q must start with an upper-case letter", e.Name), Code: ErrInvalidName})
	}
	if len(e.Properties) == 0 {
		errs = append(errs, ValidationError{Field: "properties", Message: "at least one property is required", Code: ErrNoProperties})
	}

	members := map[string]bool{}
	for _, p := range e.Properties {
		if members[p.Name] {
			errs = append(errs, ValidationError{Field: "properties." + p.Name, Message: fmt.Sprintf("duplicate property %q", p.Name), Code: ErrDuplicateName})
		}
		members[p.Name] = true
		if !memberNamePattern.MatchString(p.Name) {
			errs = append(errs, ValidationError{Field: "properties." + p.Name, Message: "property names must start with a lower-case letter", Code: ErrInvalidName})
		}
		if !p.Kind.Valid() {
			errs = append(errs, ValidationError{Field: "properties." + p.Name, Message: fmt.Sprintf("invalid type %q", p.Kind), Code: ErrInvalidFieldType})
		}
	}

	id := e.ID
	if id == "" {
		id = "id"
	}
	if p, ok := e.Property(id); !ok {
		errs = append(errs, ValidationError{Field: "id", Message: fmt.Sprintf("id property %q is not declared", id), Code: ErrUnknownIDProperty})
	} else if p.Kind != schema.KindInt {
		errs = append(errs, ValidationError{Field: "id", Message: fmt.Sprintf("id property %q must be int", id), Code: ErrInvalidFieldType})
	}

	for _, a := range e.Associations {
		field := "associations." + a.Name
		if members[a.Name] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate member %q", a.Name), Code: ErrDuplicateName})
		}
		members[a.Name] = true
		if a.Cardinality != schema.ToOne && a.Cardinality != schema.ToMany {
			errs = append(errs, ValidationError{Field: field + ".cardinality", Message: fmt.Sprintf("invalid cardinality %q, must be \"to_one\" or \"to_many\"", a.Cardinality), Code: ErrInvalidCardinality})
		}
		if a.Cardinality == schema.ToMany && strings.TrimSpace(a.MappedBy) == "" {
			errs = append(errs, ValidationError{Field: field + ".mappedBy", Message: "to_many associations require mappedBy", Code: ErrInvalidCardinality})
		}
		if entities != nil && !entities[a.Target] {
			errs = append(errs, ValidationError{Field: field + ".target", Message: fmt.Sprintf("unknown entity %q", a.Target), Code: ErrUnknownTarget})
		}
	}
	return errs
}

// validateRepository checks one repository. Field paths are relative to the
// repository: "entity", "methods.findByAge.params.age" and so on.
func validateRepository(r *repository.Declaration, entities map[string]bool) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(r.Entity) == "" {
		errs = append(errs, ValidationError{Field: "entity", Message: "repository entity is required", Code: ErrUnknownEntity})
	} else if entities != nil && !entities[r.Entity] {
		errs = append(errs, ValidationError{Field: "entity", Message: fmt.Sprintf("unknown entity %q", r.Entity), Code: ErrUnknownEntity})
	}

	methods := map[string]bool{}
	for _, m := range r.Methods {
		field := "methods." + m.Name
		if methods[m.Name] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate method %q", m.Name), Code: ErrDuplicateName})
		}
		methods[m.Name] = true
		if !memberNamePattern.MatchString(m.Name) {
			errs = append(errs, ValidationError{Field: field, Message: "method names must start with a lower-case letter", Code: ErrInvalidName})
		}

		params := map[string]bool{}
		for _, p := range m.Params {
			if params[p.Name] {
				errs = append(errs, ValidationError{Field: field + ".params." + p.Name, Message: fmt.Sprintf("duplicate parameter %q", p.Name), Code: ErrDuplicateName})
			}
			params[p.Name] = true
			if !p.Type.Valid() {
				errs = append(errs, ValidationError{Field: field + ".params." + p.Name, Message: fmt.Sprintf("invalid parameter type %q", p.Type), Code: ErrInvalidParamType})
			}
		}

		if m.Returns.Kind != "" && !m.Returns.Kind.Valid() {
			errs = append(errs, ValidationError{Field: field + ".returns", Message: fmt.Sprintf("invalid result kind %q", m.Returns.Kind), Code: ErrInvalidResultKind})
		}
		switch m.Invalidate {
		case "", plan.InvalidateNone, plan.InvalidateType, plan.InvalidateAll:
		default:
			errs = append(errs, ValidationError{Field: field + ".invalidate", Message: fmt.Sprintf("invalid invalidation %q, must be \"none\", \"type\" or \"all\"", m.Invalidate), Code: ErrInvalidInvalidation})
		}
		if m.Lock != "" {
			if _, err := queryir.ParseLockMode(m.Lock); err != nil {
				errs = append(errs, ValidationError{Field: field + ".lock", Message: err.Error(), Code: ErrInvalidLockMode})
			}
		}
	}
	return errs
}
