package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_FallbackInnermostWins(t *testing.T) {
	table := map[string]any{"license": "table-license"}
	db := map[string]any{"license": "db-license", "source": "db-source"}
	global := map[string]any{"license": "global-license", "about": "global-about"}
	scopes := []map[string]any{table, db, global}

	v, ok := Resolve("license", scopes, true)
	require.True(t, ok)
	assert.Equal(t, "table-license", v)

	v, ok = Resolve("source", scopes, true)
	require.True(t, ok)
	assert.Equal(t, "db-source", v)

	v, ok = Resolve("about", scopes, true)
	require.True(t, ok)
	assert.Equal(t, "global-about", v)

	_, ok = Resolve("missing", scopes, true)
	assert.False(t, ok)
}

func TestResolve_NoFallbackOnlyInnermost(t *testing.T) {
	table := map[string]any{}
	global := map[string]any{"license": "global-license"}

	v, ok := Resolve("license", []map[string]any{table, global}, false)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestResolve_NoScopes(t *testing.T) {
	_, ok := Resolve("k", nil, true)
	assert.False(t, ok)
	_, ok = Resolve("k", nil, false)
	assert.False(t, ok)
}

func TestMerge_InnerOverridesOuter(t *testing.T) {
	table := map[string]any{"a": "table"}
	db := map[string]any{"a": "db", "b": "db"}
	global := map[string]any{"a": "global", "b": "global", "c": "global"}

	merged := Merge([]map[string]any{table, db, global}, true)
	assert.Equal(t, map[string]any{"a": "table", "b": "db", "c": "global"}, merged)

	merged = Merge([]map[string]any{table, db, global}, false)
	assert.Equal(t, map[string]any{"a": "table"}, merged)
}

func TestScope_Validate(t *testing.T) {
	assert.NoError(t, Scope{}.Validate())
	assert.NoError(t, Scope{Database: "db"}.Validate())
	assert.NoError(t, Scope{Database: "db", Table: "t"}.Validate())

	err := Scope{Table: "t"}.Validate()
	require.Error(t, err)
	assert.True(t, IsContractError(err))
	assert.Contains(t, err.Error(), ErrCodeTableWithoutDatabase)
}
