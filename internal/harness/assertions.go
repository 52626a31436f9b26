package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/repokit/internal/schema"
	"github.com/roach88/repokit/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventInvocation {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Method, event.Args)
			}
		}
	}
	return buf.String()
}

// assertTraceContains checks for an invocation of the method with exactly
// the given args whose completion has the given outcome. Unset args and
// outcome match anything.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := normalize(assertion.Args)
	if err != nil {
		return fmt.Errorf("trace_contains args: %w", err)
	}
	for i, event := range trace {
		if event.Type != EventInvocation || event.Method != assertion.Method {
			continue
		}
		if assertion.Args != nil && !cmp.Equal(want, any(event.Args)) {
			continue
		}
		if assertion.Outcome != "" && outcomeOf(trace, i) != assertion.Outcome {
			continue
		}
		return nil
	}

	expected := fmt.Sprintf("method %s", assertion.Method)
	if assertion.Args != nil {
		expected += fmt.Sprintf(" with args %v", assertion.Args)
	}
	if assertion.Outcome != "" {
		expected += " completing " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// outcomeOf returns the outcome of the completion following invocation i.
func outcomeOf(trace []TraceEvent, i int) string {
	if i+1 < len(trace) && trace[i+1].Type == EventCompletion {
		return trace[i+1].Outcome
	}
	return ""
}

// assertTraceOrder checks that the methods' first invocations appear in the
// given order. Other invocations may intervene.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventInvocation {
			continue
		}
		if _, seen := positions[event.Method]; !seen {
			positions[event.Method] = i + 1
		}
	}

	for _, method := range assertion.Methods {
		if positions[method] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all methods present: %v", assertion.Methods),
				Actual:   fmt.Sprintf("missing method: %s", method),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(assertion.Methods); i++ {
		prev, curr := assertion.Methods[i-1], assertion.Methods[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("methods in order: %v", assertion.Methods),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the method was invoked exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventInvocation && event.Method == assertion.Method {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d invocations of %s", assertion.Count, assertion.Method),
			Actual:   fmt.Sprintf("%d invocations", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState queries the entity's table for the rows matching Where.
//
// With Rows set, the number of matching rows is checked. Otherwise exactly
// one row must match. Expect is a subset match against that row.
//
// Property and association names resolve to columns through the registry,
// so no caller text reaches the statement as an identifier.
func assertFinalState(ctx context.Context, st *store.Store, reg *schema.Registry, assertion Assertion) error {
	e, ok := reg.Entity(assertion.Entity)
	if !ok {
		return fmt.Errorf("final_state: unknown entity %q", assertion.Entity)
	}

	whereSQL, whereArgs, err := buildWhereClause(e, assertion.Where)
	if err != nil {
		return err
	}
	query := "SELECT * FROM " + e.Table
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query entity %s", e.Name),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}
	var matched []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		matched = append(matched, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read rows: %w", err)
	}

	whereDesc := formatWhereClause(assertion.Where)
	if assertion.Rows != nil {
		if len(matched) != *assertion.Rows {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%d row(s) of %s where %s", *assertion.Rows, e.Name, whereDesc),
				Actual:   fmt.Sprintf("%d row(s)", len(matched)),
			}
		}
		if len(assertion.Expect) == 0 {
			return nil
		}
	}
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row of %s where %s", e.Name, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row of %s where %s", e.Name, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		col, err := columnOf(e, key)
		if err != nil {
			return err
		}
		expected := assertion.Expect[key]
		actual := matched[0][col]
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// columnOf maps a property or to-one association name to its column.
func columnOf(e *schema.Entity, name string) (string, error) {
	if p, ok := e.Property(name); ok {
		return p.Column, nil
	}
	if a, ok := e.Association(name); ok && a.Cardinality == schema.ToOne {
		return a.Column, nil
	}
	return "", fmt.Errorf("final_state: %s has no property or to-one association %q", e.Name, name)
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism; a nil value matches NULL.
func buildWhereClause(e *schema.Entity, where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		col, err := columnOf(e, key)
		if err != nil {
			return "", nil, err
		}
		v, err := normalize(where[key])
		if err != nil {
			return "", nil, fmt.Errorf("final_state where %s: %w", key, err)
		}
		if v == nil {
			clauses = append(clauses, col+" IS NULL")
			continue
		}
		if b, ok := v.(bool); ok {
			v = boolToInt(b)
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, v)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares an expected YAML value with a column value.
// SQLite returns integers as int64 and booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case []byte:
			return exp == string(act)
		}
		return false
	case int:
		act, ok := actual.(int64)
		return ok && int64(exp) == act
	case int64:
		act, ok := actual.(int64)
		return ok && exp == act
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	}
	return cmp.Equal(expected, actual)
}

// AssertionContext provides database access for final_state assertions.
type AssertionContext struct {
	Store    *store.Store
	Registry *schema.Registry
	Ctx      context.Context
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil || actx.Registry == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, actx.Registry, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
