package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/schema"
)

func TestComparison_ImplementsPredicate(t *testing.T) {
	var p Predicate = Comparison{Path: schema.Path{"username"}, Operator: OpEquals, Param: 0}

	// Sealed interface - can type switch exhaustively
	switch p.(type) {
	case Comparison:
		// Expected
	case Composite:
		t.Fatal("unexpected type")
	}
}

func TestOperator_Arity(t *testing.T) {
	tests := []struct {
		op   Operator
		want Arity
	}{
		{OpEquals, ArityOne},
		{OpNot, ArityOne},
		{OpGreaterThan, ArityOne},
		{OpGreaterThanEqual, ArityOne},
		{OpLessThan, ArityOne},
		{OpLessThanEqual, ArityOne},
		{OpLike, ArityOne},
		{OpIn, ArityMany},
		{OpNotIn, ArityMany},
		{OpIsNull, ArityNone},
		{OpIsNotNull, ArityNone},
		{OpTrue, ArityNone},
		{OpFalse, ArityNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.True(t, tt.op.Valid())
			assert.Equal(t, tt.want, tt.op.Arity())
		})
	}
	assert.False(t, Operator("BETWEEN").Valid())
}

func TestCombine_Collapses(t *testing.T) {
	leaf := Comparison{Path: schema.Path{"age"}, Operator: OpGreaterThan, Param: 1}

	assert.Nil(t, Combine(And))
	assert.Equal(t, leaf, Combine(Or, leaf))

	got := Combine(And, leaf, leaf)
	c, ok := got.(Composite)
	require.True(t, ok)
	assert.Equal(t, And, c.Connective)
	assert.Len(t, c.Children, 2)
}

func TestLeaves_Order(t *testing.T) {
	a := Comparison{Path: schema.Path{"username"}, Operator: OpEquals, Param: 0}
	b := Comparison{Path: schema.Path{"age"}, Operator: OpGreaterThan, Param: 1}
	c := Comparison{Path: schema.Path{"team", "name"}, Operator: OpIsNull, Param: NoParam}

	tree := Composite{Connective: Or, Children: []Predicate{
		Composite{Connective: And, Children: []Predicate{a, b}},
		c,
	}}

	leaves := Leaves(tree)
	require.Len(t, leaves, 3)
	assert.Equal(t, "username", leaves[0].Path.String())
	assert.Equal(t, "age", leaves[1].Path.String())
	assert.Equal(t, "team.name", leaves[2].Path.String())

	assert.Empty(t, Leaves(nil))
}

func TestParseSort(t *testing.T) {
	s, err := ParseSort("username,desc; team.name")
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, Order{Path: schema.Path{"username"}, Direction: Desc}, s[0])
	assert.Equal(t, Order{Path: schema.Path{"team", "name"}, Direction: Asc}, s[1])
	assert.Equal(t, "username DESC, team.name ASC", s.String())

	empty, err := ParseSort("  ")
	require.NoError(t, err)
	assert.True(t, empty.IsUnsorted())

	_, err = ParseSort("username,sideways")
	assert.Error(t, err)
	_, err = ParseSort(",desc")
	assert.Error(t, err)
}

func TestBy(t *testing.T) {
	s := By(Desc, "username", "age")
	assert.Equal(t, "username DESC, age DESC", s.String())
}

func TestParamType(t *testing.T) {
	assert.True(t, ParamPaging.Special())
	assert.True(t, ParamSort.Special())
	assert.False(t, ParamList.Special())

	assert.True(t, ParamInt.Accepts(schema.KindInt))
	assert.False(t, ParamInt.Accepts(schema.KindString))
	assert.False(t, ParamList.Accepts(schema.KindInt))
	assert.False(t, ParamType("float").Valid())
}

func TestParseLockMode(t *testing.T) {
	m, err := ParseLockMode("")
	require.NoError(t, err)
	assert.Equal(t, LockNone, m)

	m, err = ParseLockMode("pessimistic_write")
	require.NoError(t, err)
	assert.Equal(t, LockPessimisticWrite, m)

	_, err = ParseLockMode("OPTIMISTIC")
	assert.Error(t, err)
}
