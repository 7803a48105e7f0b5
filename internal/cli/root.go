package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlgate/internal/app"
	"github.com/roach88/sqlgate/internal/config"
	"github.com/roach88/sqlgate/internal/engine"
	"github.com/roach88/sqlgate/internal/metadata"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Files        []string
	Immutables   []string
	Memory       bool
	MetadataPath string
	SettingsFile string
	Settings     []string
	Extensions   []string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sqlgate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sqlgate",
		Short: "sqlgate - read-only SQL over SQLite files",
		Long: `Serve read-mostly SQL access to SQLite database files.

Queries run on a fixed pool of worker goroutines, each with its own
connection per database, under a per-query time limit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringArrayVarP(&opts.Files, "file", "f", nil, "database file to serve read-only (repeatable)")
	flags.StringArrayVar(&opts.Immutables, "immutable", nil, "database file that never changes (repeatable)")
	flags.BoolVar(&opts.Memory, "memory", false, "also serve the in-memory database")
	flags.StringVar(&opts.MetadataPath, "metadata", "", "metadata document (YAML or JSON)")
	flags.StringVar(&opts.SettingsFile, "settings", "", "settings file (yaml, json or toml)")
	flags.StringArrayVar(&opts.Settings, "setting", nil, "override a setting, name:value (repeatable)")
	flags.StringArrayVar(&opts.Extensions, "load-extension", nil, "SQLite extension to load, path[:entrypoint] (repeatable)")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCannedCommand(opts))
	cmd.AddCommand(NewDatabasesCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewLabelsCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadSettings resolves settings from file, environment and --setting.
func (o *RootOptions) loadSettings() (*config.Settings, error) {
	return config.Load(config.LoadOptions{
		File:      o.SettingsFile,
		Overrides: o.Settings,
	})
}

// openApp builds the App described by the global flags.
func (o *RootOptions) openApp(f *OutputFormatter) (*app.App, error) {
	settings, err := o.loadSettings()
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "load settings", err)
	}

	md := metadata.Empty()
	if o.MetadataPath != "" {
		if md, err = metadata.Load(o.MetadataPath); err != nil {
			_ = f.Error(ErrCodeConfig, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "load metadata", err)
		}
	}

	a, err := app.New(app.Options{
		Files:      o.Files,
		Immutables: o.Immutables,
		Memory:     o.Memory,
		Settings:   settings,
		Metadata:   md,
		Extensions: o.Extensions,
	})
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "open databases", err)
	}
	f.VerboseLog("serving %v", a.Catalog().Names())
	return a, nil
}

// closeApp releases a, logging rather than returning close failures.
func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Error("close app", "error", err)
	}
}

// reportError writes err through f and maps it to an ExitError.
func reportError(f *OutputFormatter, err error) error {
	var (
		qi     *engine.QueryInterrupted
		sanity *app.SanityError
	)
	switch {
	case errors.As(err, &qi):
		_ = f.Error(ErrCodeInterrupted, "SQL query took too long", map[string]any{
			"sql":        qi.SQL,
			"params":     qi.Params,
			"time_limit": qi.Limit.String(),
		})
		return WrapExitError(ExitFailure, "query interrupted", err)
	case errors.Is(err, engine.ErrUnknownDatabase):
		_ = f.Error(ErrCodeUnknownDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown database", err)
	case errors.Is(err, app.ErrUnknownQuery):
		_ = f.Error(ErrCodeUnknownQuery, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown canned query", err)
	case errors.As(err, &sanity):
		_ = f.Error(ErrCodeSanity, sanity.Message, map[string]any{
			"database": sanity.Database,
			"table":    sanity.Table,
		})
		return WrapExitError(ExitFailure, "sanity check failed", err)
	default:
		_ = f.Error(ErrCodeQueryFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "query failed", err)
	}
}
