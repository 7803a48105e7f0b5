package cli

import (
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify every table of every database can be read",
		Long: `Read the column list of every table of every served database.

Fails with guidance when a SpatiaLite database is served without loading
the SpatiaLite extension.

Example:
  sqlgate check -f geo.db --load-extension /usr/lib/mod_spatialite.so`,
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

			if err := a.SanityCheck(cmd.Context()); err != nil {
				return reportError(f, err)
			}
			return f.Success("ok")
		},
	}
	return cmd
}
