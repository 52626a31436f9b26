package plan

import (
	"fmt"

	"github.com/roach88/repokit/internal/derive"
	"github.com/roach88/repokit/internal/queryir"
)

// bindMutation builds a BulkMutationSpec from modifying override text or a
// derived delete.
func (b *binder) bindMutation(parsed *derive.Parsed, pagingIdx, sortIdx int) (*BulkMutationSpec, error) {
	decl := b.decl

	kind := decl.Returns.Kind
	if kind != "" && kind != ResultModifying {
		return nil, &ResultShapeError{Method: decl.Name, Kind: kind, Reason: "modifying methods return the affected row count"}
	}
	if pagingIdx != NoParam || sortIdx != NoParam {
		return nil, &ResultShapeError{Method: decl.Name, Kind: ResultModifying, Reason: "does not accept paging or sort parameters"}
	}
	if decl.Lock != "" && decl.Lock != string(queryir.LockNone) {
		return nil, &ConflictingQueryOptionsError{Method: decl.Name, Reason: "lock mode on a modifying method"}
	}
	if decl.Fetch.Graph != "" || len(decl.Fetch.Paths) > 0 {
		return nil, &ConflictingQueryOptionsError{Method: decl.Name, Reason: "fetch plan on a modifying method"}
	}
	if decl.CountQuery != "" {
		return nil, &InvalidDeclarationError{Method: decl.Name, Field: "countQuery", Reason: "not allowed on a modifying method"}
	}

	inv := decl.Invalidate
	if inv == "" {
		inv = InvalidateNone
		if parsed != nil {
			// derived deletes remove instances of exactly one type
			inv = InvalidateType
		}
	}
	switch inv {
	case InvalidateNone, InvalidateType, InvalidateAll:
	default:
		return nil, &InvalidDeclarationError{Method: decl.Name, Field: "invalidate", Reason: fmt.Sprintf("unknown invalidation %q", inv)}
	}

	spec := &BulkMutationSpec{
		Method:                   decl.Name,
		Params:                   append([]queryir.Param(nil), decl.Params...),
		AffectedType:             b.root,
		Invalidation:             inv,
		InvalidatesIdentityCache: inv != InvalidateNone,
	}

	if parsed != nil {
		if parsed.Subject.Limit > 0 || len(parsed.Sort) > 0 {
			return nil, &derive.UnresolvableMethodNameError{Method: decl.Name, Reason: "delete methods take no result cap or OrderBy"}
		}
		spec.Predicate = parsed.Predicate
		if spec.Predicate != nil {
			if v := queryir.Validate(spec.Predicate, spec.Params); !v.Valid {
				return nil, &InvalidDeclarationError{Method: decl.Name, Field: "predicate", Reason: v.Problems[0]}
			}
		}
		return spec, nil
	}

	text, fetched := extractJoinFetch(decl.Query)
	if len(fetched) > 0 {
		return nil, &ConflictingQueryOptionsError{Method: decl.Name, Reason: "JOIN FETCH in a modifying statement"}
	}
	placeholders, err := b.checkPlaceholders(text, true)
	if err != nil {
		return nil, err
	}
	spec.StatementText = text
	spec.Placeholders = placeholders
	return spec, nil
}
