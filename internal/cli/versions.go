package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlgate/internal/app"
)

type versionsOutput struct {
	*app.Versions
}

func (v versionsOutput) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "sqlgate %s", v.App.Version)
	if v.App.Note != "" {
		fmt.Fprintf(w, " (%s)", v.App.Note)
	}
	fmt.Fprintf(w, "\ngo      %s\nsqlite  %s\n", v.Go.Version, v.SQLite.Version)
	fmt.Fprintf(w, "fts     %s\n", strings.Join(v.SQLite.FTSVersions, ", "))

	exts := make([]string, 0, len(v.SQLite.Extensions))
	for name, ver := range v.SQLite.Extensions {
		if ver != "" {
			name += " " + ver
		}
		exts = append(exts, name)
	}
	sort.Strings(exts)
	_, err := fmt.Fprintf(w, "ext     %s\n", strings.Join(exts, ", "))
	return err
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "versions",
		Short:         "Show Go, SQLite and extension versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.openApp(f)
			if err != nil {
				return err
			}
			defer closeApp(a)

			v, err := a.Versions(cmd.Context())
			if err != nil {
				return reportError(f, err)
			}
			return f.Success(versionsOutput{v})
		},
	}
	return cmd
}
