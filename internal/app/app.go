// Package app wires the catalog, settings, metadata, connection store,
// execution pool and label resolver into one process-wide object.
//
// Everything that touches a database goes through Execute, which runs on the
// engine's worker pool.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/sqlgate/internal/catalog"
	"github.com/roach88/sqlgate/internal/config"
	"github.com/roach88/sqlgate/internal/engine"
	"github.com/roach88/sqlgate/internal/labels"
	"github.com/roach88/sqlgate/internal/metadata"
	"github.com/roach88/sqlgate/internal/querysql"
	"github.com/roach88/sqlgate/internal/store"
)

// ErrUnknownQuery is returned when a canned query name is not defined.
var ErrUnknownQuery = errors.New("unknown canned query")

// Options configures New.
type Options struct {
	// Files are mutable database files, opened read-only.
	Files []string

	// Immutables are database files opened with immutable=1.
	Immutables []string

	// Memory adds the in-memory database even when files are given.
	Memory bool

	// Settings defaults to config.Defaults().
	Settings *config.Settings

	// Metadata defaults to an empty document.
	Metadata *metadata.Metadata

	// Extensions are SQLite extension paths loaded on every connection.
	Extensions []string

	// Functions are custom SQL functions installed on every connection.
	Functions []store.Func

	// Callbacks run on every new connection after built-in preparation.
	Callbacks []store.PrepareFunc

	// VersionNote is reported by Versions.
	VersionNote string
}

// App is the process façade. Safe for concurrent use.
type App struct {
	catalog  *catalog.Catalog
	settings *config.Settings
	metadata *metadata.Metadata
	opener   *store.Opener
	pool     *engine.Pool
	labels   *labels.Resolver

	versionNote string
}

// New builds an App. The returned App owns worker goroutines; call Close.
func New(opts Options) (*App, error) {
	cat, err := catalog.New(opts.Files, opts.Immutables, opts.Memory)
	if err != nil {
		return nil, err
	}

	settings := opts.Settings
	if settings == nil {
		settings = config.Defaults()
	}
	md := opts.Metadata
	if md == nil {
		md = metadata.Empty()
	}
	if units := md.CustomUnits(); len(units) > 0 {
		slog.Debug("custom units are not applied", "count", len(units))
	}

	opener := store.NewOpener(cat, store.Preparation{
		Functions:   opts.Functions,
		Extensions:  opts.Extensions,
		CacheSizeKB: settings.Int("cache_size_kb"),
		Callbacks:   opts.Callbacks,
	})
	pool := engine.New(opener,
		engine.WithWorkers(settings.Int("num_sql_threads")),
		engine.WithTimeLimit(time.Duration(settings.Int("sql_time_limit_ms"))*time.Millisecond),
		engine.WithMaxRows(settings.Int("max_returned_rows")),
		engine.WithPageSize(settings.Int("default_page_size")),
	)

	a := &App{
		catalog:     cat,
		settings:    settings,
		metadata:    md,
		opener:      opener,
		pool:        pool,
		labels:      labels.New(pool, md),
		versionNote: opts.VersionNote,
	}
	slog.Debug("app ready", "databases", cat.Names(), "workers", pool.Workers())
	return a, nil
}

// Close stops the pool and releases every connection.
func (a *App) Close() error {
	return errors.Join(a.pool.Close(), a.opener.Close())
}

// Catalog returns the served databases.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// Execute runs one query on the worker pool.
func (a *App) Execute(ctx context.Context, req engine.Request) (*engine.Results, error) {
	return a.pool.Execute(ctx, req)
}

// ExpandForeignKeys maps values of table.column to labels from the table
// the column references.
func (a *App) ExpandForeignKeys(ctx context.Context, database, table, column string, values []any) (map[labels.Key]string, error) {
	return a.labels.ExpandLabels(ctx, database, table, column, values)
}

// Config returns one setting, or nil for an unknown name.
func (a *App) Config(key string) any {
	return a.settings.Get(key)
}

// ConfigDict returns every setting, fully resolved.
func (a *App) ConfigDict() map[string]any {
	return a.settings.Dict()
}

// Metadata looks key up from scope outwards. A nil value means not found.
func (a *App) Metadata(key string, scope metadata.Scope, fallback bool) (any, error) {
	return a.metadata.Lookup(key, scope, fallback)
}

// MetadataDocument returns the loaded metadata document.
func (a *App) MetadataDocument() *metadata.Metadata {
	return a.metadata
}

// PluginConfig returns the configuration block of plugin for scope.
func (a *App) PluginConfig(plugin string, scope metadata.Scope, fallback bool) (any, error) {
	return a.metadata.PluginConfig(plugin, scope, fallback)
}

// TableMetadata returns the metadata block of one table with source,
// license and about filled in from the global scope.
func (a *App) TableMetadata(database, table string) map[string]any {
	return a.metadata.Inherited(a.metadata.TableMetadata(database, table))
}

// CannedQueries returns the canned queries of a database.
func (a *App) CannedQueries(database string) []metadata.CannedQuery {
	return a.metadata.CannedQueries(database)
}

// RunCanned runs a canned query with named parameters. Results are
// truncated at the configured row cap.
func (a *App) RunCanned(ctx context.Context, database, name string, params map[string]any) (*engine.Results, error) {
	q, ok := a.metadata.CannedQuery(database, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownQuery, database, name)
	}

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	args := make([]any, 0, len(names))
	for _, k := range names {
		args = append(args, sql.Named(k, params[k]))
	}

	return a.pool.Execute(ctx, engine.Request{
		Database:  database,
		SQL:       q.SQL,
		Params:    args,
		Truncate:  true,
		LogErrors: true,
	})
}

// ConnectedDatabases lists databases sorted by name. With withHash every
// file is hashed first, concurrently.
func (a *App) ConnectedDatabases(ctx context.Context, withHash bool) ([]catalog.Info, error) {
	if withHash {
		if err := a.catalog.ComputeHashes(ctx, a.pool.Workers()); err != nil {
			return nil, err
		}
	}
	return a.catalog.Connected(withHash)
}

// TableNames lists the tables of a database in name order.
func (a *App) TableNames(ctx context.Context, database string) ([]string, error) {
	res, err := a.pool.Execute(ctx, engine.Request{
		Database: database,
		SQL:      querysql.TableNames,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if s, ok := row.Index(0).(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}
