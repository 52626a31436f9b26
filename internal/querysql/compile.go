package querysql

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

// Compiler compiles provider statements to parameterized SQLite SQL.
//
// CRITICAL: every row-returning entity query ends its ORDER BY with the root
// id so results are deterministic.
// CRITICAL: values are always bound, never interpolated.
type Compiler struct {
	reg *schema.Registry
}

// NewCompiler creates a compiler over the entity registry.
func NewCompiler(reg *schema.Registry) *Compiler {
	return &Compiler{reg: reg}
}

// Query is a compiled statement.
type Query struct {
	SQL  string
	Args []any
	// Segments describe the entity blocks of each row of an entity select,
	// root first. Empty for every other statement form.
	Segments []Segment
	// Kinds are the property kinds of a derived column select.
	Kinds []schema.Kind
}

// Segment is one hydrated entity block of a result row. Its columns are
// Columns(Entity) in order.
type Segment struct {
	Alias       string
	Entity      *schema.Entity
	Path        schema.Path
	Parent      int // -1 for the root
	Association *schema.Association
}

// Column is one stored column of an entity.
type Column struct {
	Name string
	// Property is set for scalar columns, Association for foreign keys.
	Property    *schema.Property
	Association *schema.Association
}

// Columns returns the stored columns of e: scalar properties in declaration
// order followed by to-one foreign keys.
func Columns(e *schema.Entity) []Column {
	cols := make([]Column, 0, len(e.Properties)+len(e.Associations))
	for i := range e.Properties {
		cols = append(cols, Column{Name: e.Properties[i].Column, Property: &e.Properties[i]})
	}
	for _, a := range e.ForeignKeys() {
		cols = append(cols, Column{Name: a.Column, Association: a})
	}
	return cols
}

// Compile converts a statement to SQL.
func (c *Compiler) Compile(stmt *provider.Statement) (*Query, error) {
	if stmt == nil {
		return nil, fmt.Errorf("cannot compile nil statement")
	}
	root, ok := c.reg.Entity(stmt.Entity)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", stmt.Entity)
	}
	b := &builder{c: c, stmt: stmt, root: root, aliases: map[string]string{}}

	if stmt.Text != "" {
		text, err := b.expandOverride(stmt.Text)
		if err != nil {
			return nil, err
		}
		if stmt.Raw || stmt.Kind == provider.StatementMutation {
			return &Query{SQL: text, Args: b.args}, nil
		}
		b.source = "(" + text + ")"
		b.override = true
	} else {
		b.source = root.Table
	}

	switch stmt.Kind {
	case provider.StatementSelect:
		return b.compileSelect()
	case provider.StatementCount:
		return b.compileCount()
	case provider.StatementExists:
		return b.compileExists()
	case provider.StatementDelete:
		return b.compileDelete()
	case provider.StatementMutation:
		return nil, fmt.Errorf("%s: mutation statement without text", stmt.Method)
	default:
		return nil, fmt.Errorf("unsupported statement kind %q", stmt.Kind)
	}
}

type builder struct {
	c    *Compiler
	stmt *provider.Statement
	root *schema.Entity

	source   string
	override bool

	joins   []string
	aliases map[string]string // association path -> alias
	toMany  bool
	args    []any
}

func (b *builder) compileSelect() (*Query, error) {
	q := &Query{}
	var selectList []string

	switch {
	case b.stmt.Projected:
		selectList = []string{"t0.*"}
	case len(b.stmt.Columns) > 0:
		for _, p := range b.stmt.Columns {
			col, res, err := b.column(p)
			if err != nil {
				return nil, err
			}
			selectList = append(selectList, col)
			q.Kinds = append(q.Kinds, res.Kind())
		}
	default:
		segs, err := b.segments()
		if err != nil {
			return nil, err
		}
		q.Segments = segs
		for _, s := range segs {
			for _, col := range Columns(s.Entity) {
				selectList = append(selectList, s.Alias+"."+col.Name)
			}
		}
	}

	where, err := b.where()
	if err != nil {
		return nil, err
	}
	orderBy, err := b.orderBy(q.Segments)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.stmt.Distinct || b.toMany {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(selectList, ", "))
	b.writeFrom(&sb)
	sb.WriteString(where)
	sb.WriteString(orderBy)
	b.writeWindow(&sb)

	q.SQL = sb.String()
	q.Args = b.args
	return q, nil
}

func (b *builder) compileCount() (*Query, error) {
	where, err := b.where()
	if err != nil {
		return nil, err
	}
	countExpr := "COUNT(*)"
	if (b.stmt.Distinct || b.toMany) && !b.override {
		countExpr = "COUNT(DISTINCT t0." + b.root.IDProperty().Column + ")"
	}
	var sb strings.Builder
	sb.WriteString("SELECT " + countExpr)
	b.writeFrom(&sb)
	sb.WriteString(where)
	return &Query{SQL: sb.String(), Args: b.args, Kinds: []schema.Kind{schema.KindInt}}, nil
}

func (b *builder) compileExists() (*Query, error) {
	where, err := b.where()
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT 1")
	b.writeFrom(&sb)
	sb.WriteString(where)
	sb.WriteString(" LIMIT 1")
	return &Query{SQL: sb.String(), Args: b.args}, nil
}

func (b *builder) compileDelete() (*Query, error) {
	if b.override {
		return nil, fmt.Errorf("%s: delete statements are derived only", b.stmt.Method)
	}
	where, err := b.where()
	if err != nil {
		return nil, err
	}
	id := b.root.IDProperty().Column

	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s WHERE %s IN (SELECT t0.%s", b.root.Table, id, id)
	b.writeFrom(&sb)
	sb.WriteString(where)
	sb.WriteString(")")
	return &Query{SQL: sb.String(), Args: b.args}, nil
}

func (b *builder) writeFrom(sb *strings.Builder) {
	sb.WriteString(" FROM " + b.source + " t0")
	for _, j := range b.joins {
		sb.WriteString(j)
	}
}

func (b *builder) writeWindow(sb *strings.Builder) {
	switch {
	case b.stmt.Limit > 0:
		sb.WriteString(" LIMIT " + b.bind("repokit_limit", b.stmt.Limit))
		sb.WriteString(" OFFSET " + b.bind("repokit_offset", b.stmt.Offset))
	case b.stmt.Offset > 0:
		sb.WriteString(" LIMIT -1 OFFSET " + b.bind("repokit_offset", b.stmt.Offset))
	}
}

// bind appends a value and returns its placeholder: named inside override
// statements, positional otherwise.
func (b *builder) bind(name string, v any) string {
	if b.override {
		b.args = append(b.args, sql.Named(name, v))
		return ":" + name
	}
	b.args = append(b.args, v)
	return "?"
}

// segments joins every fetch path prefix and returns the hydration layout.
func (b *builder) segments() ([]Segment, error) {
	segs := []Segment{{Alias: "t0", Entity: b.root, Parent: -1}}
	index := map[string]int{"": 0}

	fetch := append([]schema.Path(nil), b.stmt.Fetch...)
	sort.Slice(fetch, func(i, j int) bool { return fetch[i].String() < fetch[j].String() })

	for _, path := range fetch {
		res, err := b.c.reg.Resolve(b.root.Name, path)
		if err != nil {
			return nil, err
		}
		if !res.AssociationsOnly() {
			return nil, fmt.Errorf("fetch path %s is not an association path", path)
		}
		for i, step := range res.Steps {
			key := path.Prefix(i + 1).String()
			if _, done := index[key]; done {
				continue
			}
			alias, err := b.joinAssociation(path.Prefix(i+1), step)
			if err != nil {
				return nil, err
			}
			target, _ := b.c.reg.Entity(step.Association.Target)
			index[key] = len(segs)
			segs = append(segs, Segment{
				Alias:       alias,
				Entity:      target,
				Path:        path.Prefix(i + 1),
				Parent:      index[path.Prefix(i).String()],
				Association: step.Association,
			})
		}
	}
	return segs, nil
}

// joinAssociation adds a LEFT JOIN for the association ending path and
// returns its alias. Joins are shared by fetch, filter and sort paths.
func (b *builder) joinAssociation(path schema.Path, step schema.Step) (string, error) {
	key := path.String()
	if alias, ok := b.aliases[key]; ok {
		return alias, nil
	}
	parent := "t0"
	if len(path) > 1 {
		parent = b.aliases[path.Prefix(len(path)-1).String()]
	}
	assoc := step.Association
	target, ok := b.c.reg.Entity(assoc.Target)
	if !ok {
		return "", fmt.Errorf("unknown entity %q", assoc.Target)
	}
	alias := fmt.Sprintf("t%d", len(b.aliases)+1)

	switch assoc.Cardinality {
	case schema.ToOne:
		b.joins = append(b.joins, fmt.Sprintf(" LEFT JOIN %s %s ON %s.%s = %s.%s",
			target.Table, alias, alias, target.IDProperty().Column, parent, assoc.Column))
	case schema.ToMany:
		inverse, ok := target.Association(assoc.MappedBy)
		if !ok {
			return "", fmt.Errorf("%s.%s: mappedBy %q not found", step.Owner.Name, assoc.Name, assoc.MappedBy)
		}
		b.joins = append(b.joins, fmt.Sprintf(" LEFT JOIN %s %s ON %s.%s = %s.%s",
			target.Table, alias, alias, inverse.Column, parent, step.Owner.IDProperty().Column))
		b.toMany = true
	}
	b.aliases[key] = alias
	return alias, nil
}

// column returns the qualified column for a property path, joining
// associations on the way. A path ending at a to-one association compares by
// its foreign key.
func (b *builder) column(path schema.Path) (string, *schema.Resolved, error) {
	res, err := b.c.reg.Resolve(b.root.Name, path)
	if err != nil {
		return "", nil, err
	}
	alias := "t0"
	for i, step := range res.Steps {
		last := i == len(res.Steps)-1
		switch {
		case step.Property != nil:
			return alias + "." + step.Property.Column, res, nil
		case last && step.Association.Cardinality == schema.ToOne:
			return alias + "." + step.Association.Column, res, nil
		case last:
			return "", nil, fmt.Errorf("path %s ends at a to-many association", path)
		}
		alias, err = b.joinAssociation(path.Prefix(i+1), step)
		if err != nil {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("path %s has no column", path)
}

func (b *builder) where() (string, error) {
	if b.stmt.Predicate == nil {
		return "", nil
	}
	cond, err := b.predicate(b.stmt.Predicate)
	if err != nil {
		return "", err
	}
	return " WHERE " + cond, nil
}

func (b *builder) predicate(p queryir.Predicate) (string, error) {
	switch n := p.(type) {
	case queryir.Comparison:
		return b.comparison(n)
	case queryir.Composite:
		parts := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			s, err := b.predicate(child)
			if err != nil {
				return "", err
			}
			if _, nested := child.(queryir.Composite); nested {
				s = "(" + s + ")"
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, " "+string(n.Connective)+" "), nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

var comparisonOps = map[queryir.Operator]string{
	queryir.OpEquals:           "=",
	queryir.OpNot:              "<>",
	queryir.OpGreaterThan:      ">",
	queryir.OpGreaterThanEqual: ">=",
	queryir.OpLessThan:         "<",
	queryir.OpLessThanEqual:    "<=",
	queryir.OpLike:             "LIKE",
}

func (b *builder) comparison(c queryir.Comparison) (string, error) {
	col, _, err := b.column(c.Path)
	if err != nil {
		return "", err
	}

	switch c.Operator {
	case queryir.OpIsNull:
		return col + " IS NULL", nil
	case queryir.OpIsNotNull:
		return col + " IS NOT NULL", nil
	case queryir.OpTrue:
		return col + " = 1", nil
	case queryir.OpFalse:
		return col + " = 0", nil
	}

	v, err := b.arg(c)
	if err != nil {
		return "", err
	}

	switch c.Operator {
	case queryir.OpIn, queryir.OpNotIn:
		values, err := listValues(v)
		if err != nil {
			return "", fmt.Errorf("%s %s: %w", c.Path, c.Operator, err)
		}
		if len(values) == 0 {
			if c.Operator == queryir.OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		marks := make([]string, len(values))
		for i, item := range values {
			marks[i] = "?"
			b.args = append(b.args, item)
		}
		kw := " IN ("
		if c.Operator == queryir.OpNotIn {
			kw = " NOT IN ("
		}
		return col + kw + strings.Join(marks, ", ") + ")", nil
	}

	op, ok := comparisonOps[c.Operator]
	if !ok {
		return "", fmt.Errorf("unsupported operator %q", c.Operator)
	}
	// a null argument compares by IS [NOT] NULL
	if v == nil {
		switch c.Operator {
		case queryir.OpEquals:
			return col + " IS NULL", nil
		case queryir.OpNot:
			return col + " IS NOT NULL", nil
		}
	}
	b.args = append(b.args, v)
	return col + " " + op + " ?", nil
}

func (b *builder) arg(c queryir.Comparison) (any, error) {
	if c.Param < 0 || c.Param >= len(b.stmt.Args) {
		return nil, fmt.Errorf("%s %s: no argument at position %d", c.Path, c.Operator, c.Param)
	}
	return b.stmt.Args[c.Param], nil
}

func (b *builder) orderBy(segs []Segment) (string, error) {
	var items []string
	seen := map[string]bool{}
	for _, o := range b.stmt.Sort {
		col, res, err := b.column(o.Path)
		if err != nil {
			return "", err
		}
		if !res.IsScalar() {
			return "", fmt.Errorf("cannot sort by association %s", o.Path)
		}
		if seen[col] {
			continue
		}
		seen[col] = true
		items = append(items, col+" "+string(o.Direction))
	}

	// Projected override rows have no known id to break ties on.
	if !b.stmt.Projected {
		idCol := "t0." + b.root.IDProperty().Column
		if !seen[idCol] {
			items = append(items, idCol+" ASC")
			seen[idCol] = true
		}
		for _, s := range segs[min(1, len(segs)):] {
			col := s.Alias + "." + s.Entity.IDProperty().Column
			if !seen[col] {
				items = append(items, col+" ASC")
				seen[col] = true
			}
		}
	}
	if len(items) == 0 {
		return "", nil
	}
	return " ORDER BY " + strings.Join(items, ", "), nil
}

// expandOverride rewrites :name placeholders, expanding list values to
// (:name_0, :name_1, ...), and binds every value with sql.Named.
func (b *builder) expandOverride(text string) (string, error) {
	var missing []string
	bound := map[string]bool{}
	out := plan.ReplacePlaceholders(text, func(name string) string {
		v, ok := b.stmt.Named[name]
		if !ok {
			missing = append(missing, name)
			return ":" + name
		}
		if values, err := listValues(v); err == nil {
			names := make([]string, len(values))
			for i, item := range values {
				n := fmt.Sprintf("%s_%d", name, i)
				names[i] = ":" + n
				if !bound[n] {
					bound[n] = true
					b.args = append(b.args, sql.Named(n, item))
				}
			}
			return "(" + strings.Join(names, ", ") + ")"
		}
		if !bound[name] {
			bound[name] = true
			b.args = append(b.args, sql.Named(name, v))
		}
		return ":" + name
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%s: no value for placeholder(s) %s", b.stmt.Method, strings.Join(missing, ", "))
	}
	return out, nil
}

// listValues flattens a slice argument. Strings and byte slices are scalars.
func listValues(v any) ([]any, error) {
	switch v.(type) {
	case nil:
		return nil, fmt.Errorf("list argument is nil")
	case string, []byte:
		return nil, fmt.Errorf("list argument is %T", v)
	case []any:
		return v.([]any), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("list argument is %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
