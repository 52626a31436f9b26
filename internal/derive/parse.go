package derive

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

// Operation is the base operation implied by a method name prefix.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationExists Operation = "exists"
	OperationCount  Operation = "count"
	OperationDelete Operation = "delete"
)

var prefixes = []struct {
	verb string
	op   Operation
}{
	{"find", OperationRead},
	{"get", OperationRead},
	{"query", OperationRead},
	{"read", OperationRead},
	{"search", OperationRead},
	{"stream", OperationRead},
	{"exists", OperationExists},
	{"count", OperationCount},
	{"delete", OperationDelete},
	{"remove", OperationDelete},
}

// suffixes maps operator keywords to operators. Sorted longest first in init.
var suffixes = []struct {
	keyword string
	op      queryir.Operator
}{
	{"IsNotNull", queryir.OpIsNotNull},
	{"NotNull", queryir.OpIsNotNull},
	{"IsNull", queryir.OpIsNull},
	{"Null", queryir.OpIsNull},
	{"GreaterThanEqual", queryir.OpGreaterThanEqual},
	{"GreaterThan", queryir.OpGreaterThan},
	{"LessThanEqual", queryir.OpLessThanEqual},
	{"LessThan", queryir.OpLessThan},
	{"IsNotIn", queryir.OpNotIn},
	{"NotIn", queryir.OpNotIn},
	{"IsIn", queryir.OpIn},
	{"In", queryir.OpIn},
	{"IsNot", queryir.OpNot},
	{"Not", queryir.OpNot},
	{"IsLike", queryir.OpLike},
	{"Like", queryir.OpLike},
	{"IsTrue", queryir.OpTrue},
	{"True", queryir.OpTrue},
	{"IsFalse", queryir.OpFalse},
	{"False", queryir.OpFalse},
	{"Is", queryir.OpEquals},
	{"Equals", queryir.OpEquals},
}

func init() {
	sort.SliceStable(suffixes, func(i, j int) bool {
		return len(suffixes[i].keyword) > len(suffixes[j].keyword)
	})
}

var capPattern = regexp.MustCompile(`(First|Top)(\d*)`)

// Subject holds the modifiers found between the verb and "By".
type Subject struct {
	Distinct bool
	// Limit is the First/Top result cap; 0 means none.
	Limit int
}

// Parsed is the result of deriving a query from a method name.
type Parsed struct {
	Method    string
	Operation Operation
	Subject   Subject
	// Predicate is nil when the name has no criteria ("findAll").
	Predicate queryir.Predicate
	// Sort is the OrderBy clause; empty when absent.
	Sort queryir.Sort
}

// Parse derives a predicate tree, sort and modifiers from a method name.
//
// Parse is pure and deterministic: the same inputs always yield a
// structurally identical result.
func Parse(name string, params []queryir.Param, root string, reg *schema.Registry) (*Parsed, error) {
	p := &parser{method: name, params: params, root: root, reg: reg}
	return p.parse()
}

type parser struct {
	method string
	params []queryir.Param
	root   string
	reg    *schema.Registry
	next   int // next parameter position to consume
}

func (p *parser) fail(segment, format string, args ...any) error {
	return &UnresolvableMethodNameError{Method: p.method, Segment: segment, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) parse() (*Parsed, error) {
	if _, ok := p.reg.Entity(p.root); !ok {
		return nil, p.fail("", "unknown entity %q", p.root)
	}

	out := &Parsed{Method: p.method}
	rest, ok := "", false
	for _, pre := range prefixes {
		if strings.HasPrefix(p.method, pre.verb) && startsWord(p.method, len(pre.verb)) {
			out.Operation = pre.op
			rest = p.method[len(pre.verb):]
			ok = true
			break
		}
	}
	if !ok {
		return nil, p.fail(p.method, "unknown prefix")
	}

	subject, criteria := splitSubject(rest)
	subj, err := p.parseSubject(subject)
	if err != nil {
		return nil, err
	}
	out.Subject = subj

	criteria, orderText := splitOrderBy(criteria)
	if criteria != "" {
		pred, err := p.parseCriteria(criteria)
		if err != nil {
			return nil, err
		}
		out.Predicate = pred
	}
	if orderText != "" {
		s, err := p.parseOrder(orderText)
		if err != nil {
			return nil, err
		}
		out.Sort = s
	}

	if err := p.checkLeftover(); err != nil {
		return nil, err
	}
	return out, nil
}

// splitSubject splits at the first "By" that starts a word boundary.
func splitSubject(rest string) (subject, criteria string) {
	for i := 0; i+2 <= len(rest); i++ {
		if rest[i:i+2] == "By" && startsWord(rest, i+2) {
			return rest[:i], rest[i+2:]
		}
	}
	return rest, ""
}

// splitOrderBy separates the criteria from a trailing OrderBy clause.
func splitOrderBy(s string) (criteria, order string) {
	const kw = "OrderBy"
	for i := 0; i+len(kw) <= len(s); i++ {
		if s[i:i+len(kw)] == kw && startsWord(s, i+len(kw)) && i+len(kw) < len(s) {
			return s[:i], s[i+len(kw):]
		}
	}
	return s, ""
}

func (p *parser) parseSubject(subject string) (Subject, error) {
	var s Subject
	if strings.Contains(subject, "Distinct") {
		s.Distinct = true
	}
	for _, m := range capPattern.FindAllStringSubmatchIndex(subject, -1) {
		if !startsWord(subject, m[1]) {
			continue
		}
		n := 1
		if m[4] != m[5] {
			v, err := strconv.Atoi(subject[m[4]:m[5]])
			if err != nil || v <= 0 {
				return s, p.fail(subject[m[0]:m[1]], "result cap must be a positive number")
			}
			n = v
		}
		s.Limit = n
		break
	}
	return s, nil
}

// splitKeyword splits s at every occurrence of kw that begins a word and is
// followed by another word. Empty parts are reported as errors by the caller.
func splitKeyword(s, kw string) []string {
	var parts []string
	start := 0
	for i := 0; i+len(kw) <= len(s); i++ {
		if s[i:i+len(kw)] != kw {
			continue
		}
		end := i + len(kw)
		if end >= len(s) || !startsWord(s, end) {
			continue
		}
		parts = append(parts, s[start:i])
		start = end
		i = end - 1
	}
	return append(parts, s[start:])
}

func (p *parser) parseCriteria(criteria string) (queryir.Predicate, error) {
	var ors []queryir.Predicate
	for _, orPart := range splitKeyword(criteria, "Or") {
		if orPart == "" {
			return nil, p.fail(criteria, "empty Or operand")
		}
		var ands []queryir.Predicate
		for _, andPart := range splitKeyword(orPart, "And") {
			if andPart == "" {
				return nil, p.fail(orPart, "empty And operand")
			}
			leaf, err := p.parseLeaf(andPart)
			if err != nil {
				return nil, err
			}
			ands = append(ands, leaf)
		}
		ors = append(ors, queryir.Combine(queryir.And, ands...))
	}
	return queryir.Combine(queryir.Or, ors...), nil
}

func (p *parser) parseLeaf(part string) (queryir.Predicate, error) {
	for _, sfx := range suffixes {
		if !strings.HasSuffix(part, sfx.keyword) || len(part) == len(sfx.keyword) {
			continue
		}
		if path, ok := ResolvePath(p.reg, p.root, strings.TrimSuffix(part, sfx.keyword)); ok {
			return p.bindLeaf(part, path, sfx.op)
		}
	}
	path, ok := ResolvePath(p.reg, p.root, part)
	if !ok {
		return nil, p.fail(part, "no property path on %s", p.root)
	}
	return p.bindLeaf(part, path, queryir.OpEquals)
}

func (p *parser) bindLeaf(part string, path schema.Path, op queryir.Operator) (queryir.Predicate, error) {
	res, err := p.reg.Resolve(p.root, path)
	if err != nil {
		return nil, p.fail(part, "%v", err)
	}
	if leaf := res.Leaf(); leaf.Association != nil && leaf.Association.Cardinality == schema.ToMany {
		return nil, p.fail(part, "%s ends at a to-many association", path)
	}
	kind := res.Kind()

	switch op {
	case queryir.OpTrue, queryir.OpFalse:
		if kind != schema.KindBool {
			return nil, p.fail(part, "%s requires a bool property, %s is %s", op, path, kind)
		}
	case queryir.OpLike:
		if kind != schema.KindString {
			return nil, p.fail(part, "%s requires a string property, %s is %s", op, path, kind)
		}
	}

	leaf := queryir.Comparison{Path: path, Operator: op, Param: queryir.NoParam}
	if op.Arity() == queryir.ArityNone {
		return leaf, nil
	}

	idx, ok := p.take()
	if !ok {
		return nil, &ArityMismatchError{
			Method:   p.method,
			Expected: p.countOperands(),
			Got:      p.countDeclared(),
			Detail:   fmt.Sprintf("no parameter left for %s", part),
		}
	}
	param := p.params[idx]

	switch op.Arity() {
	case queryir.ArityMany:
		if param.Type != queryir.ParamList {
			return nil, &ParamTypeError{Method: p.method, Param: param.Name, Type: param.Type, Path: path, Want: string(queryir.ParamList)}
		}
	default:
		if !param.Type.Accepts(kind) {
			return nil, &ParamTypeError{Method: p.method, Param: param.Name, Type: param.Type, Path: path, Want: string(kind)}
		}
	}

	leaf.Param = idx
	return leaf, nil
}

// take returns the position of the next non-special parameter.
func (p *parser) take() (int, bool) {
	for p.next < len(p.params) {
		i := p.next
		p.next++
		if !p.params[i].Type.Special() {
			return i, true
		}
	}
	return 0, false
}

func (p *parser) checkLeftover() error {
	if idx, ok := p.take(); ok {
		return &ArityMismatchError{
			Method:   p.method,
			Expected: p.countOperands(),
			Got:      p.countDeclared(),
			Detail:   fmt.Sprintf("parameter %q is not used by any criterion", p.params[idx].Name),
		}
	}
	return nil
}

func (p *parser) countDeclared() int {
	n := 0
	for _, prm := range p.params {
		if !prm.Type.Special() {
			n++
		}
	}
	return n
}

// countOperands re-scans the name for the number of operands it implies.
// Only called on error paths.
func (p *parser) countOperands() int {
	_, criteria := splitSubject(strings.TrimLeftFunc(p.method, func(r rune) bool { return r >= 'a' && r <= 'z' }))
	criteria, _ = splitOrderBy(criteria)
	if criteria == "" {
		return 0
	}
	n := 0
	for _, orPart := range splitKeyword(criteria, "Or") {
		for _, andPart := range splitKeyword(orPart, "And") {
			n += p.operandsOf(andPart)
		}
	}
	return n
}

func (p *parser) operandsOf(part string) int {
	for _, sfx := range suffixes {
		if !strings.HasSuffix(part, sfx.keyword) || len(part) == len(sfx.keyword) {
			continue
		}
		if _, ok := ResolvePath(p.reg, p.root, strings.TrimSuffix(part, sfx.keyword)); ok {
			if sfx.op.Arity() == queryir.ArityNone {
				return 0
			}
			return 1
		}
	}
	return 1
}

func (p *parser) parseOrder(text string) (queryir.Sort, error) {
	var out queryir.Sort
	for _, part := range splitDirections(text) {
		dir := queryir.Asc
		pathText := part
		switch {
		case strings.HasSuffix(part, "Desc") && len(part) > 4:
			dir, pathText = queryir.Desc, strings.TrimSuffix(part, "Desc")
		case strings.HasSuffix(part, "Asc") && len(part) > 3:
			pathText = strings.TrimSuffix(part, "Asc")
		}
		path, ok := ResolvePath(p.reg, p.root, pathText)
		if !ok {
			return nil, p.fail(part, "no sort property on %s", p.root)
		}
		res, err := p.reg.Resolve(p.root, path)
		if err != nil {
			return nil, p.fail(part, "%v", err)
		}
		if !res.IsScalar() {
			return nil, p.fail(part, "sort path %s is not a scalar property", path)
		}
		if res.TraversesToMany() {
			return nil, p.fail(part, "sort path %s traverses a to-many association", path)
		}
		out = append(out, queryir.Order{Path: path, Direction: dir})
	}
	return out, nil
}

// splitDirections splits "UsernameDescAgeAsc" after each Asc/Desc keyword
// that is followed by another word.
func splitDirections(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		for _, kw := range []string{"Desc", "Asc"} {
			end := i + len(kw)
			if end < len(s) && s[i:end] == kw && startsWord(s, end) && startsWord(s, i) {
				parts = append(parts, s[start:end])
				start = end
				i = end - 1
				break
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
