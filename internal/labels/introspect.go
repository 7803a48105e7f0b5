package labels

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/sqlgate/internal/engine"
	"github.com/roach88/sqlgate/internal/metadata"
	"github.com/roach88/sqlgate/internal/querysql"
)

// SchemaIntrospector reads table structure with PRAGMA statements run
// through an Executor. Declarations in Metadata take precedence.
type SchemaIntrospector struct {
	Executor Executor
	Metadata *metadata.Metadata
}

func (s *SchemaIntrospector) metadata() *metadata.Metadata {
	if s.Metadata == nil {
		return metadata.Empty()
	}
	return s.Metadata
}

// ForeignKeys returns declared foreign keys followed by introspected ones
// for columns that have no declaration.
func (s *SchemaIntrospector) ForeignKeys(ctx context.Context, database, table string) ([]metadata.ForeignKey, error) {
	declared := s.metadata().ForeignKeys(database, table)
	seen := make(map[string]bool, len(declared))
	fks := make([]metadata.ForeignKey, 0, len(declared))
	for _, fk := range declared {
		seen[fk.Column] = true
		fks = append(fks, fk)
	}

	res, err := s.Executor.Execute(ctx, engine.Request{
		Database: database,
		SQL:      querysql.ForeignKeyList(table),
	})
	if err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
	}

	for _, row := range res.Rows {
		from := stringValue(row, "from")
		if from == "" || seen[from] {
			continue
		}
		to := stringValue(row, "to")
		if to == "" {
			// A reference without a column targets the primary key.
			to = "rowid"
		}
		seen[from] = true
		fks = append(fks, metadata.ForeignKey{
			Column:      from,
			OtherTable:  stringValue(row, "table"),
			OtherColumn: to,
		})
	}
	return fks, nil
}

// Columns returns the column names of table in declaration order.
func (s *SchemaIntrospector) Columns(ctx context.Context, database, table string) ([]string, error) {
	res, err := s.Executor.Execute(ctx, engine.Request{
		Database: database,
		SQL:      querysql.TableInfo(table),
	})
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	cols := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		cols = append(cols, stringValue(row, "name"))
	}
	return cols, nil
}

// LabelColumn picks the label column of table: the metadata label_column
// hint, else a column named name or title, else the other column of a
// two-column table keyed by id or pk.
func (s *SchemaIntrospector) LabelColumn(ctx context.Context, database, table string) (string, error) {
	if hint := s.metadata().LabelColumn(database, table); hint != "" {
		return hint, nil
	}

	cols, err := s.Columns(ctx, database, table)
	if err != nil {
		return "", err
	}
	return guessLabelColumn(cols), nil
}

func guessLabelColumn(cols []string) string {
	for _, want := range []string{"name", "title"} {
		for _, c := range cols {
			if strings.EqualFold(c, want) {
				return c
			}
		}
	}
	if len(cols) == 2 {
		for i, c := range cols {
			if c == "id" || c == "pk" {
				return cols[1-i]
			}
		}
	}
	return ""
}

func stringValue(row engine.Row, column string) string {
	v, _ := row.Get(column)
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}
