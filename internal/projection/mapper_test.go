package projection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
)

type memberDto struct {
	ID       int64
	Username string
	TeamName string
}

func memberDTO(withConstructor bool) *plan.DTO {
	d := &plan.DTO{
		Name: "MemberDto",
		Params: []plan.DTOParam{
			{Name: "id", Kind: schema.KindInt},
			{Name: "username", Kind: schema.KindString},
			{Name: "teamName", Kind: schema.KindString},
		},
	}
	if withConstructor {
		d.New = func(v []any) (any, error) {
			dto := memberDto{ID: v[0].(int64), Username: v[1].(string)}
			if v[2] != nil {
				dto.TeamName = v[2].(string)
			}
			return dto, nil
		}
	}
	return d
}

func TestMapper_Entity(t *testing.T) {
	rec := schema.NewRecord("Member", map[string]any{"id": int64(1)})
	m := NewMapper(plan.Projection{Kind: plan.ProjectEntity, Entity: "Member"})

	got, err := m.Map(provider.Tuple{rec})
	require.NoError(t, err)
	assert.Same(t, rec, got)

	_, err = m.Map(provider.Tuple{"not a record"})
	assert.Error(t, err)
}

func TestMapper_DTO(t *testing.T) {
	t.Run("constructor", func(t *testing.T) {
		m := NewMapper(plan.Projection{Kind: plan.ProjectDTO, DTO: memberDTO(true)})
		got, err := m.Map(provider.Tuple{int64(1), []byte("member1"), "teamA"})
		require.NoError(t, err)
		assert.Equal(t, memberDto{ID: 1, Username: "member1", TeamName: "teamA"}, got)
	})

	t.Run("value without constructor", func(t *testing.T) {
		m := NewMapper(plan.Projection{Kind: plan.ProjectDTO, DTO: memberDTO(false)})
		got, err := m.Map(provider.Tuple{int64(1), "member1", nil})
		require.NoError(t, err)

		v, ok := got.(Value)
		require.True(t, ok)
		assert.Equal(t, "MemberDto", v.Type)
		username, _ := v.Get("username")
		assert.Equal(t, "member1", username)
		assert.Equal(t, map[string]any{"id": int64(1), "username": "member1", "teamName": nil}, v.Map())
		assert.Equal(t, "MemberDto(id=1, username=member1, teamName=<nil>)", v.String())
	})

	t.Run("width mismatch", func(t *testing.T) {
		m := NewMapper(plan.Projection{Kind: plan.ProjectDTO, DTO: memberDTO(false)})
		_, err := m.Map(provider.Tuple{int64(1)})
		assert.Error(t, err)
	})

	t.Run("constructor error", func(t *testing.T) {
		d := memberDTO(false)
		d.New = func([]any) (any, error) { return nil, errors.New("boom") }
		m := NewMapper(plan.Projection{Kind: plan.ProjectDTO, DTO: d})
		_, err := m.Map(provider.Tuple{int64(1), "a", "b"})
		assert.EqualError(t, err, "boom")
	})
}

func TestMapper_ScalarList(t *testing.T) {
	m := NewMapper(plan.Projection{Kind: plan.ProjectScalar, Scalar: schema.KindString})
	got, err := m.MapAll([]provider.Tuple{{"member1"}, {[]byte("member2")}})
	require.NoError(t, err)
	assert.Equal(t, []any{"member1", "member2"}, got)

	empty, err := m.MapAll(nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in   any
		kind schema.Kind
		want any
		err  bool
	}{
		{nil, schema.KindInt, nil, false},
		{int64(3), schema.KindInt, int64(3), false},
		{3, schema.KindInt, int64(3), false},
		{"42", schema.KindInt, int64(42), false},
		{"x", schema.KindInt, nil, true},
		{int64(1), schema.KindBool, true, false},
		{int64(0), schema.KindBool, false, false},
		{true, schema.KindBool, true, false},
		{[]byte("a"), schema.KindString, "a", false},
		{int64(7), schema.KindString, "7", false},
		{1.5, schema.KindInt, nil, true},
		{"a", schema.Kind("date"), nil, true},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.in, tt.kind)
		if tt.err {
			assert.Error(t, err, "%v as %s", tt.in, tt.kind)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
