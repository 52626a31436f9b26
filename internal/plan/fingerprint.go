package plan

import (
	"github.com/roach88/repokit/internal/canonical"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

// Fingerprint returns a stable SHA-256 identity of a bound spec.
// Two declarations that bind to structurally identical specs share a fingerprint.
func Fingerprint(s Spec) (string, error) {
	return canonical.Fingerprint(canonical.DomainQuerySpec, Describe(s))
}

// Describe returns the canonical document form of a spec. It is used for
// fingerprints and for compile output.
func Describe(s Spec) map[string]any {
	switch spec := s.(type) {
	case *QuerySpec:
		return describeQuery(spec)
	case *BulkMutationSpec:
		return describeMutation(spec)
	}
	return map[string]any{}
}

func describeQuery(s *QuerySpec) map[string]any {
	doc := map[string]any{
		"kind":         "query",
		"method":       s.Method,
		"entity":       s.Entity,
		"operation":    string(s.Operation),
		"params":       describeParams(s.Params),
		"result":       string(s.Result),
		"distinct":     s.Distinct,
		"limit":        s.Limit,
		"fetch_source": string(s.FetchSource),
		"fetch":        describePaths(s.FetchPaths),
		"lock":         string(s.Lock),
		"projection":   describeProjection(s.Projection),
		"paging_param": s.PagingParam,
		"sort_param":   s.SortParam,
		"in_memory":    s.InMemoryPaging,
	}
	if s.Predicate != nil {
		doc["predicate"] = DescribePredicate(s.Predicate)
	}
	if len(s.Sort) > 0 {
		doc["sort"] = describeSort(s.Sort)
	}
	if s.OverrideText != "" {
		doc["query"] = s.OverrideText
		doc["placeholders"] = append([]string{}, s.Placeholders...)
	}
	if s.CountOverrideText != "" {
		doc["count_query"] = s.CountOverrideText
	}
	if s.Hints != nil {
		doc["hints"] = s.Hints
	}
	if s.CountHints != nil {
		doc["count_hints"] = s.CountHints
	}
	return doc
}

func describeMutation(s *BulkMutationSpec) map[string]any {
	doc := map[string]any{
		"kind":         "mutation",
		"method":       s.Method,
		"params":       describeParams(s.Params),
		"affected":     s.AffectedType,
		"invalidation": string(s.Invalidation),
	}
	if s.StatementText != "" {
		doc["statement"] = s.StatementText
		doc["placeholders"] = append([]string{}, s.Placeholders...)
	}
	if s.Predicate != nil {
		doc["predicate"] = DescribePredicate(s.Predicate)
	}
	return doc
}

// DescribePredicate renders a predicate tree as nested documents.
func DescribePredicate(p queryir.Predicate) map[string]any {
	switch n := p.(type) {
	case queryir.Comparison:
		return map[string]any{"path": n.Path.String(), "op": string(n.Operator), "param": n.Param}
	case queryir.Composite:
		children := make([]any, len(n.Children))
		for i, c := range n.Children {
			children[i] = DescribePredicate(c)
		}
		return map[string]any{string(n.Connective): children}
	}
	return map[string]any{}
}

func describeParams(ps []queryir.Param) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		out[i] = map[string]any{"name": p.Name, "type": string(p.Type)}
	}
	return out
}

func describePaths(ps []schema.Path) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func describeSort(s queryir.Sort) []any {
	out := make([]any, len(s))
	for i, o := range s {
		out[i] = map[string]any{"path": o.Path.String(), "direction": string(o.Direction)}
	}
	return out
}

func describeProjection(p Projection) map[string]any {
	doc := map[string]any{"kind": string(p.Kind)}
	switch p.Kind {
	case ProjectEntity:
		doc["entity"] = p.Entity
	case ProjectScalar:
		doc["scalar"] = string(p.Scalar)
	case ProjectDTO:
		doc["dto"] = p.DTO.Name
		if len(p.Columns) > 0 {
			doc["columns"] = describePaths(p.Columns)
		}
	}
	return doc
}
