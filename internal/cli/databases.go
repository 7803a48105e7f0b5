package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlgate/internal/catalog"
)

// DatabasesOptions holds flags for the databases command.
type DatabasesOptions struct {
	*RootOptions
	Hash bool
}

// DatabaseList is the payload of the databases command.
type DatabaseList []catalog.Info

// RenderText writes one database per line.
func (l DatabaseList) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "name\tpath\tsize\tmutable\thash")
	for _, d := range l {
		path := d.Path
		if d.IsMemory {
			path = "(memory)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", d.Name, path, d.Size, d.IsMutable, d.Hash)
	}
	return tw.Flush()
}

// NewDatabasesCommand creates the databases command.
func NewDatabasesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatabasesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "databases",
		Short: "List served databases",
		Long: `List the served databases sorted by name, with file size and mode.

With --hash every file is read in full to compute its sha256.

Example:
  sqlgate databases -f a.db --immutable b.db --hash`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDatabases(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Hash, "hash", false, "include content hashes")

	return cmd
}

func listDatabases(opts *DatabasesOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	infos, err := a.ConnectedDatabases(cmd.Context(), opts.Hash)
	if err != nil {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list databases", err)
	}
	return f.Success(DatabaseList(infos))
}
