package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlgate/internal/metadata"
)

// CannedOptions holds flags for the canned command.
type CannedOptions struct {
	*RootOptions
	Params []string
}

// CannedList is the payload of canned without a query name.
type CannedList struct {
	Database string                 `json:"database"`
	Queries  []metadata.CannedQuery `json:"queries"`
}

// RenderText writes one query per line.
func (c *CannedList) RenderText(w io.Writer) error {
	for _, q := range c.Queries {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", q.Name, q.SQL); err != nil {
			return err
		}
	}
	return nil
}

// NewCannedCommand creates the canned command.
func NewCannedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CannedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "canned <database> [name]",
		Short: "List or run canned queries from metadata",
		Long: `List the canned queries of a database, or run one by name.

Canned queries are defined under databases.<name>.queries in the metadata
document. Parameters bind to :name placeholders.

Example:
  sqlgate canned --metadata meta.yaml -f fixtures.db fixtures
  sqlgate canned --metadata meta.yaml -f fixtures.db fixtures city_by_id --param id=3`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return listCanned(opts, args[0], cmd)
			}
			return runCanned(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "named parameter, name=value (repeatable)")

	return cmd
}

func listCanned(opts *CannedOptions, database string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	return f.Success(&CannedList{Database: database, Queries: a.CannedQueries(database)})
}

func runCanned(opts *CannedOptions, database, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	params, err := parseNamed(opts.Params)
	if err != nil {
		_ = f.Error(ErrCodeBadArgument, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --param", err)
	}

	a, err := opts.openApp(f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	res, err := a.RunCanned(cmd.Context(), database, name, params)
	if err != nil {
		return reportError(f, err)
	}
	return f.Success(newQueryOutput(database, res))
}
