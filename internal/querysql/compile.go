package querysql

import (
	"fmt"
	"regexp"
	"strings"
)

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// keywords are SQLite reserved words that must be quoted even when they look
// like plain identifiers.
var keywords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		abort action add after all alter analyze and as asc attach autoincrement
		before begin between by cascade case cast check collate column commit
		conflict constraint create cross current_date current_time
		current_timestamp database default deferrable deferred delete desc
		detach distinct drop each else end escape except exclusive exists
		explain fail for foreign from full glob group having if ignore immediate
		in index indexed initially inner insert instead intersect into is isnull
		join key left like limit match natural no not notnull null of offset on
		or order outer plan pragma primary query raise recursive references
		regexp reindex release rename replace restrict right rollback row
		savepoint select set table temp temporary then to transaction trigger
		union unique update using vacuum values view virtual when where with
		without`) {
		keywords[w] = true
	}
}

// EscapeIdent returns name ready to splice into SQL text as an identifier.
//
// Plain identifiers pass through unchanged; anything else, including
// reserved words, is double-quoted with embedded quotes doubled.
func EscapeIdent(name string) string {
	if plainIdent.MatchString(name) && !keywords[strings.ToLower(name)] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholders returns n comma-separated positional placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// LabelQuery builds the single batched lookup used to resolve labels for n
// distinct values of a foreign-key column.
//
// CRITICAL: values are never interpolated; the query takes n parameters.
func LabelQuery(otherTable, otherColumn, labelColumn string, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("label query needs at least one value")
	}
	return fmt.Sprintf("select %s, %s from %s where %s in (%s)",
		EscapeIdent(otherColumn),
		EscapeIdent(labelColumn),
		EscapeIdent(otherTable),
		EscapeIdent(otherColumn),
		Placeholders(n)), nil
}

// TableInfo returns the PRAGMA listing the columns of table.
func TableInfo(table string) string {
	return fmt.Sprintf("PRAGMA table_info(%s);", EscapeIdent(table))
}

// ForeignKeyList returns the PRAGMA listing the foreign keys of table.
func ForeignKeyList(table string) string {
	return fmt.Sprintf("PRAGMA foreign_key_list(%s);", EscapeIdent(table))
}

// TableNames lists user tables in name order.
const TableNames = `select name from sqlite_master where type = 'table' order by name`
