package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/schema"
)

func TestResolvePath(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Username", "username", true},
		{"username", "username", true},
		{"TeamName", "team.name", true},
		{"teamName", "team.name", true},
		{"Team_Name", "team.name", true},
		{"Team", "team", true},
		{"TeamMembersAge", "team.members.age", true},
		{"Nickname", "", false},
		{"Team_", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ResolvePath(reg, "Member", tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolvePath_DeepestWins(t *testing.T) {
	// Member has both a scalar teamName and a team association with a name.
	reg, err := schema.NewRegistry(
		schema.Entity{
			Name: "Member",
			Properties: []schema.Property{
				{Name: "id", Kind: schema.KindInt},
				{Name: "teamName", Kind: schema.KindString},
			},
			Associations: []schema.Association{{Name: "team", Target: "Team", Cardinality: schema.ToOne}},
		},
		schema.Entity{
			Name: "Team",
			Properties: []schema.Property{
				{Name: "id", Kind: schema.KindInt},
				{Name: "name", Kind: schema.KindString},
			},
		},
	)
	require.NoError(t, err)

	got, ok := ResolvePath(reg, "Member", "TeamName")
	require.True(t, ok)
	assert.Equal(t, "team.name", got.String())

	// lower-case input resolves the same way
	got, ok = ResolvePath(reg, "Member", "teamName")
	require.True(t, ok)
	assert.Equal(t, "team.name", got.String())
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"Team", "Name"}, splitWords("TeamName"))
	assert.Equal(t, []string{"HTTP", "Status"}, splitWords("HTTPStatus"))
	assert.Equal(t, []string{"Age2", "Max"}, splitWords("Age2Max"))
	assert.Equal(t, []string{"Username"}, splitWords("Username"))
}

func TestDecapitalize(t *testing.T) {
	assert.Equal(t, "username", decapitalize("Username"))
	assert.Equal(t, "URL", decapitalize("URL"))
	assert.Equal(t, "a", decapitalize("A"))
}
