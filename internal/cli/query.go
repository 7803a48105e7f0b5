package cli

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlgate/internal/engine"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Params    []string
	Named     []string
	Truncate  bool
	TimeLimit time.Duration
}

// QueryOutput is the payload of query and canned.
type QueryOutput struct {
	Database  string          `json:"database"`
	Columns   []engine.Column `json:"columns"`
	Rows      []engine.Row    `json:"rows"`
	Truncated bool            `json:"truncated"`
}

func newQueryOutput(database string, res *engine.Results) *QueryOutput {
	return &QueryOutput{
		Database:  database,
		Columns:   res.Columns,
		Rows:      res.Rows,
		Truncated: res.Truncated,
	}
}

// RenderText writes rows as a tab-aligned table.
func (q *QueryOutput) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	names := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		names[i] = c.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range q.Rows {
		cells := make([]string, row.Len())
		for i, v := range row.Values() {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	suffix := ""
	if q.Truncated {
		suffix = " (truncated)"
	}
	_, err := fmt.Fprintf(w, "%d row(s)%s\n", len(q.Rows), suffix)
	return err
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("<Binary: %d bytes>", len(x))
	default:
		return fmt.Sprint(x)
	}
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <database> <sql>",
		Short: "Run a SQL query against a database",
		Long: `Run a read-only SQL query against one of the served databases.

Positional parameters bind to ? placeholders in order; named parameters bind
to :name placeholders.

Example:
  sqlgate query -f fixtures.db fixtures "select * from cities where id = ?" --param 1
  sqlgate query -f fixtures.db fixtures "select * from cities where name = :name" --named name=Detroit
  sqlgate query -f fixtures.db fixtures "select * from seq" --truncate --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "positional parameter value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Named, "named", nil, "named parameter, name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Truncate, "truncate", false, "cap rows at max_returned_rows")
	cmd.Flags().DurationVar(&opts.TimeLimit, "time-limit", 0, "tighten the query time limit (e.g. 250ms)")

	return cmd
}

func runQuery(opts *QueryOptions, database, query string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	params := make([]any, 0, len(opts.Params)+len(opts.Named))
	for _, p := range opts.Params {
		params = append(params, p)
	}
	named, err := parseNamed(opts.Named)
	if err != nil {
		_ = f.Error(ErrCodeBadArgument, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --named", err)
	}
	for name, value := range named {
		params = append(params, sql.Named(name, value))
	}

	a, err := opts.openApp(f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	res, err := a.Execute(cmd.Context(), engine.Request{
		Database:  database,
		SQL:       query,
		Params:    params,
		Truncate:  opts.Truncate,
		TimeLimit: opts.TimeLimit,
		LogErrors: opts.Verbose,
	})
	if err != nil {
		return reportError(f, err)
	}
	return f.Success(newQueryOutput(database, res))
}

// parseNamed parses name=value pairs.
func parseNamed(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q: expected name=value", p)
		}
		out[name] = value
	}
	return out, nil
}
