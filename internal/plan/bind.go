package plan

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/roach88/repokit/internal/derive"
	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

var paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// BindOption configures Bind.
type BindOption func(*binder)

// WithLogger sets the logger used for bind-time warnings.
func WithLogger(l *slog.Logger) BindOption {
	return func(b *binder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bind resolves a method declaration against the schema into an immutable
// spec. Every declaration problem is reported here; a spec that binds never
// fails for declaration reasons at invocation time.
func Bind(decl MethodDecl, root string, reg *schema.Registry, dtos *DTORegistry, opts ...BindOption) (Spec, error) {
	b := &binder{decl: decl, root: root, reg: reg, dtos: dtos, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b.bind()
}

type binder struct {
	decl   MethodDecl
	root   string
	reg    *schema.Registry
	dtos   *DTORegistry
	logger *slog.Logger
}

func (b *binder) bind() (Spec, error) {
	if _, ok := b.reg.Entity(b.root); !ok {
		return nil, &InvalidDeclarationError{Method: b.decl.Name, Field: "entity", Reason: fmt.Sprintf("unknown entity %q", b.root)}
	}
	pagingIdx, sortIdx, err := b.checkParams()
	if err != nil {
		return nil, err
	}

	if b.decl.Query != "" {
		verb := leadingKeyword(b.decl.Query)
		modifyingText := verb == "UPDATE" || verb == "DELETE" || verb == "INSERT"
		switch {
		case b.decl.Modifying && !modifyingText:
			return nil, &InvalidDeclarationError{Method: b.decl.Name, Field: "query", Reason: fmt.Sprintf("modifying query must start with UPDATE, DELETE or INSERT, got %q", verb)}
		case !b.decl.Modifying && modifyingText:
			return nil, &InvalidDeclarationError{Method: b.decl.Name, Field: "query", Reason: verb + " statement requires modifying: true"}
		case !b.decl.Modifying && verb != "SELECT" && verb != "WITH":
			return nil, &InvalidDeclarationError{Method: b.decl.Name, Field: "query", Reason: fmt.Sprintf("query must start with SELECT or WITH, got %q", verb)}
		}
		if b.decl.Modifying {
			return b.bindMutation(nil, pagingIdx, sortIdx)
		}
		return b.bindQuery(nil, pagingIdx, sortIdx)
	}

	parsed, err := derive.Parse(b.decl.Name, b.decl.Params, b.root, b.reg)
	if err != nil {
		return nil, err
	}
	if parsed.Operation == derive.OperationDelete {
		return b.bindMutation(parsed, pagingIdx, sortIdx)
	}
	if b.decl.Modifying {
		return nil, &InvalidDeclarationError{Method: b.decl.Name, Field: "modifying", Reason: "requires query text or a delete method name"}
	}
	return b.bindQuery(parsed, pagingIdx, sortIdx)
}

// checkParams validates parameter names and types and locates the special
// paging and sort parameters.
func (b *binder) checkParams() (pagingIdx, sortIdx int, err error) {
	pagingIdx, sortIdx = NoParam, NoParam
	seen := map[string]bool{}
	for i, p := range b.decl.Params {
		if !paramNamePattern.MatchString(p.Name) {
			return 0, 0, &InvalidDeclarationError{Method: b.decl.Name, Field: "params", Reason: fmt.Sprintf("invalid parameter name %q", p.Name)}
		}
		if seen[p.Name] {
			return 0, 0, &InvalidDeclarationError{Method: b.decl.Name, Field: "params", Reason: fmt.Sprintf("duplicate parameter %q", p.Name)}
		}
		seen[p.Name] = true
		if !p.Type.Valid() {
			return 0, 0, &InvalidDeclarationError{Method: b.decl.Name, Field: "params." + p.Name, Reason: fmt.Sprintf("unknown type %q", p.Type)}
		}
		switch p.Type {
		case queryir.ParamPaging:
			if pagingIdx != NoParam {
				return 0, 0, &ResultShapeError{Method: b.decl.Name, Kind: b.decl.Returns.Kind, Reason: "more than one paging parameter"}
			}
			pagingIdx = i
		case queryir.ParamSort:
			if sortIdx != NoParam {
				return 0, 0, &ResultShapeError{Method: b.decl.Name, Kind: b.decl.Returns.Kind, Reason: "more than one sort parameter"}
			}
			sortIdx = i
		}
	}
	return pagingIdx, sortIdx, nil
}

func (b *binder) bindQuery(parsed *derive.Parsed, pagingIdx, sortIdx int) (*QuerySpec, error) {
	decl := b.decl
	spec := &QuerySpec{
		Method:      decl.Name,
		Entity:      b.root,
		Operation:   derive.OperationRead,
		Params:      append([]queryir.Param(nil), decl.Params...),
		FetchSource: FetchNone,
		PagingParam: pagingIdx,
		SortParam:   sortIdx,
		Limit:       decl.Limit,
	}
	if decl.Limit < 0 {
		return nil, &InvalidDeclarationError{Method: decl.Name, Field: "limit", Reason: "must be >= 0"}
	}

	if parsed != nil {
		spec.Operation = parsed.Operation
		spec.Predicate = parsed.Predicate
		spec.Sort = parsed.Sort
		spec.Distinct = parsed.Subject.Distinct
		spec.Limit = paging.MinLimit(parsed.Subject.Limit, decl.Limit)
	}

	result, err := b.resultKind(spec.Operation)
	if err != nil {
		return nil, err
	}
	spec.Result = result
	if err := b.checkResultParams(result, pagingIdx); err != nil {
		return nil, err
	}

	var overridePaths []schema.Path
	if parsed == nil {
		if err := b.bindOverride(spec, &overridePaths); err != nil {
			return nil, err
		}
	} else if decl.CountQuery != "" {
		return nil, &InvalidDeclarationError{Method: decl.Name, Field: "countQuery", Reason: "requires query text"}
	}

	if err := b.bindProjection(spec); err != nil {
		return nil, err
	}
	if err := b.bindFetch(spec, overridePaths); err != nil {
		return nil, err
	}
	if err := b.bindOptions(spec); err != nil {
		return nil, err
	}

	if spec.Predicate != nil {
		if v := queryir.Validate(spec.Predicate, spec.Params); !v.Valid {
			return nil, &InvalidDeclarationError{Method: decl.Name, Field: "predicate", Reason: v.Problems[0]}
		}
	}
	return spec, nil
}

// resultKind resolves the declared return kind, inferring it when absent.
func (b *binder) resultKind(op derive.Operation) (ResultKind, error) {
	kind := b.decl.Returns.Kind
	if kind == "" {
		switch op {
		case derive.OperationCount:
			kind = ResultCount
		case derive.OperationExists:
			kind = ResultExists
		default:
			kind = ResultList
		}
	}
	if !kind.Valid() {
		return "", &ResultShapeError{Method: b.decl.Name, Kind: kind, Reason: "unknown result kind"}
	}

	switch op {
	case derive.OperationCount:
		if kind != ResultCount {
			return "", &ResultShapeError{Method: b.decl.Name, Kind: kind, Reason: "count methods return count"}
		}
	case derive.OperationExists:
		if kind != ResultExists {
			return "", &ResultShapeError{Method: b.decl.Name, Kind: kind, Reason: "exists methods return exists"}
		}
	default:
		if kind == ResultModifying {
			return "", &ResultShapeError{Method: b.decl.Name, Kind: kind, Reason: "read methods cannot return modifying"}
		}
	}
	return kind, nil
}

func (b *binder) checkResultParams(kind ResultKind, pagingIdx int) error {
	switch {
	case kind.Paged() && pagingIdx == NoParam:
		return &ResultShapeError{Method: b.decl.Name, Kind: kind, Reason: "requires a paging parameter"}
	case pagingIdx != NoParam && (kind == ResultSingle || kind == ResultOptional || kind == ResultCount || kind == ResultExists):
		return &ResultShapeError{Method: b.decl.Name, Kind: kind, Reason: "does not accept a paging parameter"}
	}
	return nil
}

func (b *binder) bindOverride(spec *QuerySpec, fetchPaths *[]schema.Path) error {
	decl := b.decl
	text, paths := extractJoinFetch(decl.Query)
	*fetchPaths = paths
	spec.OverrideText = text

	placeholders, err := b.checkPlaceholders(text, true)
	if err != nil {
		return err
	}
	spec.Placeholders = placeholders

	if decl.CountQuery != "" {
		if spec.Result != ResultPage {
			return &InvalidDeclarationError{Method: decl.Name, Field: "countQuery", Reason: "only page results run a count query"}
		}
		if kw := leadingKeyword(decl.CountQuery); kw != "SELECT" && kw != "WITH" {
			return &InvalidDeclarationError{Method: decl.Name, Field: "countQuery", Reason: fmt.Sprintf("must start with SELECT or WITH, got %q", kw)}
		}
		countText, _ := extractJoinFetch(decl.CountQuery)
		cp, err := b.checkPlaceholders(countText, false)
		if err != nil {
			return err
		}
		spec.CountOverrideText = countText
		spec.CountPlaceholders = cp
	}
	return nil
}

// checkPlaceholders verifies every placeholder names a declared, non-special
// parameter. When requireAll is set every such parameter must be referenced.
func (b *binder) checkPlaceholders(text string, requireAll bool) ([]string, error) {
	placeholders := Placeholders(text)
	declared := map[string]queryir.Param{}
	var bindable []string
	for _, p := range b.decl.Params {
		if p.Type.Special() {
			continue
		}
		declared[p.Name] = p
		bindable = append(bindable, p.Name)
	}

	used := map[string]bool{}
	for _, name := range placeholders {
		if _, ok := declared[name]; !ok {
			return nil, &MissingParameterBindingError{Method: b.decl.Name, Placeholder: name}
		}
		used[name] = true
	}
	if !requireAll {
		return placeholders, nil
	}

	var unused []string
	for _, name := range bindable {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	if len(unused) > 0 {
		return nil, &derive.ArityMismatchError{
			Method:   b.decl.Name,
			Expected: len(placeholders),
			Got:      len(bindable),
			Detail:   "parameters never referenced: " + quoteAll(unused),
		}
	}
	return placeholders, nil
}

func (b *binder) bindProjection(spec *QuerySpec) error {
	decl := b.decl
	if spec.Result == ResultCount || spec.Result == ResultExists {
		spec.Projection = Projection{Kind: ProjectNone}
		if spec.IsOverride() {
			return b.checkOverrideWidth(spec, 1, string(spec.Result))
		}
		return nil
	}

	of := decl.Returns.Of
	switch {
	case of == "" || of == b.root:
		spec.Projection = Projection{Kind: ProjectEntity, Entity: b.root}
		return nil

	case schema.Kind(of).Valid():
		spec.Projection = Projection{Kind: ProjectScalar, Scalar: schema.Kind(of)}
		if !spec.IsOverride() {
			return &ProjectionError{Method: decl.Name, Target: of, Reason: "scalar projection requires query text"}
		}
		return b.checkOverrideWidth(spec, 1, of)
	}

	dto, ok := b.dtos.Lookup(of)
	if !ok {
		if _, isEntity := b.reg.Entity(of); isEntity {
			return &ProjectionError{Method: decl.Name, Target: of, Reason: fmt.Sprintf("repository entity is %s", b.root)}
		}
		return &ProjectionError{Method: decl.Name, Target: of, Reason: "unknown result type"}
	}
	spec.Projection = Projection{Kind: ProjectDTO, DTO: dto}

	if spec.IsOverride() {
		return b.checkOverrideWidth(spec, len(dto.Params), dto.Name)
	}

	for _, p := range dto.Params {
		path, ok := derive.ResolvePath(b.reg, b.root, p.Name)
		if !ok {
			return &ProjectionError{Method: decl.Name, Target: dto.Name, Reason: fmt.Sprintf("parameter %q matches no property of %s", p.Name, b.root)}
		}
		res, err := b.reg.Resolve(b.root, path)
		if err != nil {
			return &ProjectionError{Method: decl.Name, Target: dto.Name, Reason: err.Error()}
		}
		if res.TraversesToMany() {
			return &ProjectionError{Method: decl.Name, Target: dto.Name, Reason: fmt.Sprintf("parameter %q traverses a to-many association", p.Name)}
		}
		if res.Kind() != p.Kind {
			return &ProjectionError{Method: decl.Name, Target: dto.Name, Reason: fmt.Sprintf("parameter %q is %s but %s is %s", p.Name, p.Kind, path, res.Kind())}
		}
		spec.Projection.Columns = append(spec.Projection.Columns, path)
	}
	return nil
}

func (b *binder) checkOverrideWidth(spec *QuerySpec, want int, target string) error {
	n, star, ok := selectItemCount(spec.OverrideText)
	switch {
	case !ok:
		return &ProjectionError{Method: b.decl.Name, Target: target, Reason: "cannot read the select list of the query"}
	case star:
		return &ProjectionError{Method: b.decl.Name, Target: target, Reason: "select list uses *"}
	case n != want:
		return &ProjectionError{Method: b.decl.Name, Target: target, Reason: fmt.Sprintf("query selects %d expression(s), want %d", n, want)}
	}
	return nil
}

func sortedPaths(paths []schema.Path) []schema.Path {
	seen := map[string]schema.Path{}
	for _, p := range paths {
		seen[p.String()] = p
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]schema.Path, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}
