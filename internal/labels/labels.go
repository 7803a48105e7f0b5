// Package labels resolves human-readable labels for foreign-key values.
//
// For a column that references another table, the label of a value is the
// other table's label column in the matching row. All values of one batch
// are resolved with a single parameterized query. A batch whose query hits
// its time limit yields no labels rather than an error.
package labels

import (
	"context"
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/sqlgate/internal/engine"
	"github.com/roach88/sqlgate/internal/metadata"
	"github.com/roach88/sqlgate/internal/querysql"
)

var metricBatches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqlgate_label_batches_total",
		Help: "Label expansion batches by outcome.",
	},
	[]string{
		"result", // ok, interrupted, nolabel
	},
)

// Executor runs a query. *engine.Pool satisfies it.
type Executor interface {
	Execute(ctx context.Context, req engine.Request) (*engine.Results, error)
}

// Introspector answers schema questions about a table.
type Introspector interface {
	// ForeignKeys returns the outbound foreign keys of table.
	ForeignKeys(ctx context.Context, database, table string) ([]metadata.ForeignKey, error)

	// LabelColumn returns the column used as label for table rows, or ""
	// when the table has none.
	LabelColumn(ctx context.Context, database, table string) (string, error)
}

// Key identifies one labeled value.
type Key struct {
	Column string
	Value  any
}

// Resolver expands foreign-key values to labels.
type Resolver struct {
	Executor     Executor
	Introspector Introspector
}

// New returns a Resolver that introspects through exec with metadata hints
// from md.
func New(exec Executor, md *metadata.Metadata) *Resolver {
	return &Resolver{
		Executor:     exec,
		Introspector: &SchemaIntrospector{Executor: exec, Metadata: md},
	}
}

// ExpandLabels maps each distinct value of table.column to a label.
//
//   - column is not a foreign key: empty map.
//   - the referenced table has no label column: each value maps to its own
//     string form.
//   - the lookup is interrupted: empty map.
//
// NULL values are never labeled. []byte values are keyed by their string
// form and integer values by int64, matching how rows come back from the
// engine.
func (r *Resolver) ExpandLabels(ctx context.Context, database, table, column string, values []any) (map[Key]string, error) {
	labeled := make(map[Key]string)

	fks, err := r.Introspector.ForeignKeys(ctx, database, table)
	if err != nil {
		return nil, err
	}
	fk, ok := findForeignKey(fks, column)
	if !ok {
		return labeled, nil
	}

	distinct, err := distinctValues(values)
	if err != nil {
		return nil, err
	}
	if len(distinct) == 0 {
		return labeled, nil
	}

	labelColumn, err := r.Introspector.LabelColumn(ctx, database, fk.OtherTable)
	if err != nil {
		return nil, err
	}
	if labelColumn == "" {
		metricBatches.WithLabelValues("nolabel").Inc()
		for _, v := range distinct {
			labeled[Key{Column: fk.Column, Value: v}] = fmt.Sprint(v)
		}
		return labeled, nil
	}

	sql, err := querysql.LabelQuery(fk.OtherTable, fk.OtherColumn, labelColumn, len(distinct))
	if err != nil {
		return nil, err
	}
	res, err := r.Executor.Execute(ctx, engine.Request{
		Database: database,
		SQL:      sql,
		Params:   distinct,
	})
	if err != nil {
		if engine.IsInterrupted(err) {
			metricBatches.WithLabelValues("interrupted").Inc()
			return labeled, nil
		}
		return nil, err
	}

	for _, row := range res.Rows {
		if row.Len() < 2 {
			continue
		}
		labeled[Key{Column: fk.Column, Value: normalize(row.Index(0))}] = labelString(row.Index(1))
	}
	metricBatches.WithLabelValues("ok").Inc()
	return labeled, nil
}

func findForeignKey(fks []metadata.ForeignKey, column string) (metadata.ForeignKey, bool) {
	for _, fk := range fks {
		if fk.Column == column {
			return fk, true
		}
	}
	return metadata.ForeignKey{}, false
}

// distinctValues returns normalized values in first-seen order, without
// NULLs. Values that cannot be map keys are rejected.
func distinctValues(values []any) ([]any, error) {
	seen := make(map[any]bool, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == nil {
			continue
		}
		if !reflect.ValueOf(v).Comparable() {
			return nil, fmt.Errorf("label value of type %T cannot be matched", v)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// normalize makes v usable as a map key and comparable with driver values.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func labelString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
