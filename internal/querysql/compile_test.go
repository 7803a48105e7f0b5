package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cities", "cities"},
		{"_private", "_private"},
		{"city_id", "city_id"},
		{"table with spaces", `"table with spaces"`},
		{"1starts_with_digit", `"1starts_with_digit"`},
		{"select", `"select"`},
		{"Order", `"Order"`},
		{"hyphen-ated", `"hyphen-ated"`},
		{"", `""`},
		{"city]x", `"city]x"`},
		{"[bracketed]", `"[bracketed]"`},
		{`say "hi"`, `"say ""hi"""`},
		{`x"); drop table t; --`, `"x""); drop table t; --"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeIdent(tt.in))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestLabelQuery(t *testing.T) {
	q, err := LabelQuery("cities", "id", "name", 2)
	require.NoError(t, err)
	assert.Equal(t, "select id, name from cities where id in (?, ?)", q)

	q, err = LabelQuery("my table", "key", "group", 1)
	require.NoError(t, err)
	assert.Equal(t, `select "key", "group" from "my table" where "key" in (?)`, q)

	q, err = LabelQuery("city]x", "id", "na]me", 1)
	require.NoError(t, err)
	assert.Equal(t, `select id, "na]me" from "city]x" where id in (?)`, q)

	_, err = LabelQuery("cities", "id", "name", 0)
	assert.Error(t, err)
}

func TestPragmas(t *testing.T) {
	assert.Equal(t, "PRAGMA table_info(cities);", TableInfo("cities"))
	assert.Equal(t, `PRAGMA foreign_key_list("odd name");`, ForeignKeyList("odd name"))
	assert.Equal(t, `PRAGMA table_info("city]x");`, TableInfo("city]x"))
}
