package spec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `{
  "domain": "UserService",
  "version": "1.2.0",
  "behaviors": [
    {
      "name": "CreateUser",
      "preconditions": ["input.email contains '@'"],
      "postconditions": ["result.status == 'ACTIVE'", "result.email == input.email"]
    },
    {
      "name": "DeleteUser",
      "postconditions": ["result.deleted == true"]
    }
  ],
  "global_invariants": ["state.userCount >= 0"]
}`

func TestParse_ValidDocument(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	require.NoError(t, err)

	assert.Equal(t, "UserService", doc.Domain)
	assert.Equal(t, "1.2.0", doc.Version)
	require.Len(t, doc.Behaviors, 2)
	assert.Equal(t, "CreateUser", doc.Behaviors[0].Name)
	assert.Len(t, doc.Behaviors[0].Postconditions, 2)
	assert.Equal(t, 5, doc.ClauseCount())
}

func TestParse_DefaultsVersion(t *testing.T) {
	doc, err := Parse([]byte(`{"domain": "D", "behaviors": []}`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", doc.Version)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing domain", `{"behaviors": []}`},
		{"empty domain", `{"domain": "", "behaviors": []}`},
		{"missing behaviors", `{"domain": "D"}`},
		{"behavior without name", `{"domain": "D", "behaviors": [{"postconditions": ["x == 1"]}]}`},
		{"empty clause expression", `{"domain": "D", "behaviors": [{"name": "B", "postconditions": [""]}]}`},
		{"behaviors not a list", `{"domain": "D", "behaviors": {"name": "B"}}`},
		{"not JSON at all", `domain: D`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			var se *SpecError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Path, "nope.json")
}

func TestLoad_RecordsSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.SourceFile)
}

func TestContentHash_StableAndContentSensitive(t *testing.T) {
	docA, err := Parse([]byte(validDoc))
	require.NoError(t, err)
	docB, err := Parse([]byte(validDoc))
	require.NoError(t, err)

	hashA, err := docA.ContentHash()
	require.NoError(t, err)
	hashB, err := docB.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)

	changed, err := Parse([]byte(`{"domain": "UserService", "behaviors": []}`))
	require.NoError(t, err)
	hashC, err := changed.ContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashC)
}

func TestBehaviorLookup(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	require.NoError(t, err)

	b, ok := doc.Behavior("DeleteUser")
	require.True(t, ok)
	assert.Equal(t, []string{"result.deleted == true"}, b.Postconditions)

	_, ok = doc.Behavior("NoSuchBehavior")
	assert.False(t, ok)
}
