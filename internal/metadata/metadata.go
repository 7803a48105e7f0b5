package metadata

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Metadata is a loaded metadata document.
type Metadata struct {
	doc map[string]any
}

// Empty returns a document with no keys at any scope.
func Empty() *Metadata {
	return &Metadata{doc: map[string]any{}}
}

// Load reads and validates a metadata document. YAML and JSON are both
// accepted since JSON is valid YAML.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a metadata document.
func Parse(data []byte) (*Metadata, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	return &Metadata{doc: doc}, nil
}

// Document returns the raw document.
func (m *Metadata) Document() map[string]any {
	return m.doc
}

// scopes returns the search list for sc, innermost first.
func (m *Metadata) scopes(sc Scope) []map[string]any {
	var list []map[string]any
	if sc.Database != "" {
		db := m.database(sc.Database)
		if sc.Table != "" {
			list = append(list, m.table(sc.Database, sc.Table))
		}
		list = append(list, db)
	}
	return append(list, m.doc)
}

func (m *Metadata) database(name string) map[string]any {
	return child(child(m.doc, "databases"), name)
}

func (m *Metadata) table(database, table string) map[string]any {
	return child(child(m.database(database), "tables"), table)
}

// child returns parent[key] as a map, or an empty map.
func child(parent map[string]any, key string) map[string]any {
	if v, ok := parent[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// Lookup returns the value for key, cascading outward from sc when fallback
// is set. A nil value means no consulted scope defines the key.
func (m *Metadata) Lookup(key string, sc Scope, fallback bool) (any, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	v, _ := Resolve(key, m.scopes(sc), fallback)
	return v, nil
}

// Merged returns every key visible from sc, inner scopes overriding outer.
func (m *Metadata) Merged(sc Scope, fallback bool) (map[string]any, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return Merge(m.scopes(sc), fallback), nil
}

// PluginConfig returns the configuration block for a plugin, cascading from sc.
func (m *Metadata) PluginConfig(plugin string, sc Scope, fallback bool) (any, error) {
	plugins, err := m.Lookup("plugins", sc, fallback)
	if err != nil {
		return nil, err
	}
	if p, ok := plugins.(map[string]any); ok {
		return p[plugin], nil
	}
	return nil, nil
}

// TableMetadata returns the table-level block only, without cascading.
func (m *Metadata) TableMetadata(database, table string) map[string]any {
	return m.table(database, table)
}

// LabelColumn returns the label_column hint for a table, if any.
func (m *Metadata) LabelColumn(database, table string) string {
	s, _ := m.table(database, table)["label_column"].(string)
	return s
}

// ForeignKey is a foreign key relation, either introspected or declared.
type ForeignKey struct {
	Column      string `json:"column"`
	OtherTable  string `json:"other_table"`
	OtherColumn string `json:"other_column"`
}

// ForeignKeys returns foreign keys declared in metadata for a table.
// Declared keys take precedence over introspected ones for the same column.
func (m *Metadata) ForeignKeys(database, table string) []ForeignKey {
	raw, _ := m.table(database, table)["foreign_keys"].([]any)
	var fks []ForeignKey
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fk := ForeignKey{}
		fk.Column, _ = entry["column"].(string)
		fk.OtherTable, _ = entry["other_table"].(string)
		fk.OtherColumn, _ = entry["other_column"].(string)
		fks = append(fks, fk)
	}
	return fks
}

// CustomUnits returns the global custom_units list.
func (m *Metadata) CustomUnits() []string {
	raw, _ := m.doc["custom_units"].([]any)
	units := make([]string, 0, len(raw))
	for _, u := range raw {
		if s, ok := u.(string); ok {
			units = append(units, s)
		}
	}
	return units
}

// inheritedKeys fall back to the global scope when a block leaves them empty.
var inheritedKeys = []string{"source", "source_url", "license", "license_url", "about", "about_url"}

// Inherited returns a copy of local with source, license and about fields
// filled in from the global scope where local leaves them empty.
func (m *Metadata) Inherited(local map[string]any) map[string]any {
	out := make(map[string]any, len(local)+len(inheritedKeys))
	for k, v := range local {
		out[k] = v
	}
	for _, key := range inheritedKeys {
		if isEmpty(out[key]) {
			out[key] = m.doc[key]
		}
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// CannedQuery is a named query stored in database-level metadata.
type CannedQuery struct {
	Name  string         `json:"name"`
	SQL   string         `json:"sql"`
	Extra map[string]any `json:"extra,omitempty"`
}

// CannedQueries returns a database's canned queries sorted by name.
// Queries are never inherited from the global scope.
func (m *Metadata) CannedQueries(database string) []CannedQuery {
	queries := m.cannedQueryMap(database)
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]CannedQuery, 0, len(names))
	for _, name := range names {
		if q, ok := m.CannedQuery(database, name); ok {
			out = append(out, q)
		}
	}
	return out
}

// CannedQuery returns one canned query. A bare string is shorthand for
// {sql: <string>}.
func (m *Metadata) CannedQuery(database, name string) (CannedQuery, bool) {
	raw, ok := m.cannedQueryMap(database)[name]
	if !ok || raw == nil {
		return CannedQuery{}, false
	}
	switch q := raw.(type) {
	case string:
		return CannedQuery{Name: name, SQL: q}, true
	case map[string]any:
		cq := CannedQuery{Name: name}
		cq.SQL, _ = q["sql"].(string)
		for k, v := range q {
			if k == "sql" {
				continue
			}
			if cq.Extra == nil {
				cq.Extra = make(map[string]any)
			}
			cq.Extra[k] = v
		}
		return cq, cq.SQL != ""
	default:
		return CannedQuery{}, false
	}
}

func (m *Metadata) cannedQueryMap(database string) map[string]any {
	v, _ := m.Lookup("queries", Scope{Database: database}, false)
	q, _ := v.(map[string]any)
	return q
}
