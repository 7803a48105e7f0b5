package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlgate/internal/labels"
)

// LabelEntry is one labeled foreign-key value.
type LabelEntry struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// LabelList is the payload of the labels command, in argument order.
type LabelList struct {
	Column string       `json:"column"`
	Labels []LabelEntry `json:"labels"`
}

// RenderText writes value and label per line.
func (l *LabelList) RenderText(w io.Writer) error {
	for _, e := range l.Labels {
		if _, err := fmt.Fprintf(w, "%v\t%s\n", e.Value, e.Label); err != nil {
			return err
		}
	}
	return nil
}

// NewLabelsCommand creates the labels command.
func NewLabelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels <database> <table> <column> <value>...",
		Short: "Resolve labels for foreign-key values",
		Long: `Resolve human-readable labels for values of a foreign-key column.

Each value is looked up in the referenced table's label column with one
query. Values without a label are omitted. Integer-looking values are
matched as integers.

Example:
  sqlgate labels -f fixtures.db fixtures addresses city_id 1 2 3`,
		Args:          cobra.MinimumNArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLabels(rootOpts, args[0], args[1], args[2], args[3:], cmd)
		},
	}
	return cmd
}

func runLabels(opts *RootOptions, database, table, column string, raw []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	values := make([]any, len(raw))
	for i, s := range raw {
		values[i] = parseValue(s)
	}

	got, err := a.ExpandForeignKeys(cmd.Context(), database, table, column, values)
	if err != nil {
		return reportError(f, err)
	}

	out := &LabelList{Column: column, Labels: []LabelEntry{}}
	seen := make(map[any]bool, len(values))
	for _, v := range values {
		label, ok := got[labels.Key{Column: column, Value: v}]
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out.Labels = append(out.Labels, LabelEntry{Value: v, Label: label})
	}
	return f.Success(out)
}

// parseValue treats integer-looking arguments as integers.
func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
