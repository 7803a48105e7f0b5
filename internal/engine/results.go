package engine

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Column describes one result column.
type Column struct {
	Name string `json:"name"`

	// DeclType is the declared column type, empty for expressions.
	DeclType string `json:"decl_type,omitempty"`
}

// Row is one result row. Values keep column order.
type Row struct {
	names  []string
	values []any
}

// Values returns the row values in column order.
func (r Row) Values() []any {
	return r.values
}

// Index returns the value at column position i.
func (r Row) Index(i int) any {
	return r.values[i]
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.values)
}

// Get returns the value of the first column named name.
func (r Row) Get(name string) (any, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as column name → value. Later duplicate column names
// win.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, n := range r.names {
		m[n] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", n, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Results is the outcome of one query. Not mutated after construction.
type Results struct {
	Columns   []Column `json:"columns"`
	Rows      []Row    `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// First returns the first row, if any.
func (r *Results) First() (Row, bool) {
	if len(r.Rows) == 0 {
		return Row{}, false
	}
	return r.Rows[0], true
}

// ColumnNames returns column names in order.
func (r *Results) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// rowCap returns how many rows to keep, or 0 for no cap.
//
// When maxRows equals pageSize the cap grows by one, so a caller fetching
// pageSize+1 rows to detect a next page is not reported as truncated.
func rowCap(truncate bool, maxRows, pageSize int) int {
	if !truncate || maxRows <= 0 {
		return 0
	}
	if maxRows == pageSize {
		return maxRows + 1
	}
	return maxRows
}

// assemble drains rows into Results, reading at most cap+1 rows when a cap
// applies. Column descriptors are captured whether or not rows are capped.
func assemble(rows *sql.Rows, truncate bool, maxRows, pageSize int) (*Results, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(types))
	names := make([]string, len(types))
	for i, ct := range types {
		cols[i] = Column{Name: ct.Name(), DeclType: ct.DatabaseTypeName()}
		names[i] = ct.Name()
	}

	limit := rowCap(truncate, maxRows, pageSize)
	dec := unicode.UTF8.NewDecoder()

	res := &Results{Columns: cols, Rows: []Row{}}
	fetched := 0
	for rows.Next() {
		fetched++
		if limit > 0 && fetched > limit {
			break
		}
		row, err := scanRow(rows, names, dec)
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.Truncated = limit > 0 && fetched > limit
	return res, nil
}

func scanRow(rows *sql.Rows, names []string, dec *encoding.Decoder) (Row, error) {
	values := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return Row{}, fmt.Errorf("scan row: %w", err)
	}
	for i, v := range values {
		if s, ok := v.(string); ok && !utf8.ValidString(s) {
			fixed, err := dec.String(s)
			if err != nil {
				return Row{}, fmt.Errorf("decode text: %w", err)
			}
			values[i] = fixed
		}
	}
	return Row{names: names, values: values}, nil
}
