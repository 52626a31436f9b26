package plan

import (
	"strings"

	"github.com/roach88/repokit/internal/schema"
)

// bindFetch resolves the fetch plan.
//
// Precedence: JOIN FETCH clauses of the override text, then the declared
// graph and ad-hoc paths (merged), then nothing.
func (b *binder) bindFetch(spec *QuerySpec, overridePaths []schema.Path) error {
	decl := b.decl
	var paths []schema.Path

	switch {
	case len(overridePaths) > 0:
		spec.FetchSource = FetchOverride
		paths = overridePaths
	case decl.Fetch.Graph != "" || len(decl.Fetch.Paths) > 0:
		spec.FetchSource = FetchGraph
		if decl.Fetch.Graph != "" {
			graph, err := b.reg.Graph(decl.Fetch.Graph)
			if err != nil {
				return &InvalidPathError{Method: decl.Name, Path: decl.Fetch.Graph, Reason: err.Error()}
			}
			graphEntity, _, _ := strings.Cut(decl.Fetch.Graph, ".")
			if graphEntity != b.root {
				return &InvalidPathError{Method: decl.Name, Path: decl.Fetch.Graph, Reason: "graph belongs to " + graphEntity + ", not " + b.root}
			}
			paths = append(paths, graph...)
		}
		for _, p := range decl.Fetch.Paths {
			paths = append(paths, schema.ParsePath(p))
		}
	default:
		spec.FetchSource = FetchNone
		return nil
	}

	if spec.Projection.Kind != ProjectEntity {
		return &ConflictingQueryOptionsError{Method: decl.Name, Reason: "fetch plans apply to entity results only"}
	}

	var risky schema.Path
	for _, p := range paths {
		res, err := b.reg.Resolve(b.root, p)
		if err != nil {
			return &InvalidPathError{Method: decl.Name, Path: p.String(), Reason: err.Error()}
		}
		if !res.AssociationsOnly() {
			return &InvalidPathError{Method: decl.Name, Path: p.String(), Reason: "fetch paths must traverse associations only"}
		}
		if res.TraversesToMany() {
			spec.FetchToMany = true
			if risky == nil {
				risky = p
			}
		}
	}
	spec.FetchPaths = sortedPaths(paths)

	windowed := spec.Result.Paged() || spec.PagingParam != NoParam || spec.Limit > 0
	if spec.FetchToMany && windowed {
		if !decl.InMemoryPaging {
			return &InMemoryPaginationRiskError{Method: decl.Name, Path: risky}
		}
		spec.InMemoryPaging = true
		b.logger.Warn("method pages in memory",
			"method", decl.Name,
			"entity", b.root,
			"fetch", risky.String())
	}
	return nil
}
