package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlgate/internal/config"
)

// SettingEntry is one resolved setting.
type SettingEntry struct {
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Default any    `json:"default"`
	Help    string `json:"help"`
}

// SettingList is the payload of the settings command, in option order.
type SettingList []SettingEntry

// RenderText writes name, value and help per line.
func (l SettingList) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range l {
		fmt.Fprintf(tw, "%s\t%v\t%s\n", s.Name, s.Value, s.Help)
	}
	return tw.Flush()
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show resolved settings",
		Long: `Show every setting after applying the settings file, SQLGATE_*
environment variables and --setting overrides.

Example:
  sqlgate settings --setting sql_time_limit_ms:3500`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			settings, err := rootOpts.loadSettings()
			if err != nil {
				_ = f.Error(ErrCodeConfig, err.Error(), nil)
				return WrapExitError(ExitCommandError, "load settings", err)
			}
			if env := config.EnvOverrides(); len(env) > 0 {
				f.VerboseLog("set from environment: %v", env)
			}

			list := make(SettingList, 0, len(config.Options))
			for _, o := range config.Options {
				list = append(list, SettingEntry{
					Name:    o.Name,
					Value:   settings.Get(o.Name),
					Default: o.Default,
					Help:    o.Help,
				})
			}
			return f.Success(list)
		},
	}
	return cmd
}
