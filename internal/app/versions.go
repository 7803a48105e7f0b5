package app

import (
	"context"
	"fmt"
	"runtime"

	"github.com/maloquacious/semver"
)

var version = semver.Version{
	Major: 0,
	Minor: 3,
	Patch: 0,
	Build: semver.Commit(),
}

// Version returns the application version.
func Version() semver.Version {
	return version
}

// VersionString formats Version as major.minor.patch.
func VersionString() string {
	return fmt.Sprintf("%d.%d.%d", version.Major, version.Minor, version.Patch)
}

// Versions describes the runtime and the SQLite library in use.
type Versions struct {
	Go struct {
		Version string `json:"version"`
	} `json:"go"`
	App struct {
		Version string `json:"version"`
		Build   string `json:"build,omitempty"`
		Note    string `json:"note,omitempty"`
	} `json:"sqlgate"`
	SQLite SQLiteVersions `json:"sqlite"`
}

// SQLiteVersions reports what the linked SQLite library supports.
type SQLiteVersions struct {
	Version     string   `json:"version"`
	FTSVersions []string `json:"fts_versions"`

	// Extensions maps available extensions to their version, or "" when the
	// extension does not report one.
	Extensions     map[string]string `json:"extensions"`
	CompileOptions []string          `json:"compile_options"`
}

type extensionProbe struct {
	name       string
	sql        string
	hasVersion bool
}

var extensionProbes = []extensionProbe{
	{"json1", "SELECT json('{}')", false},
	{"spatialite", "SELECT spatialite_version()", true},
}

// Versions probes a fresh, prepared in-memory connection.
//
// The probes run as one unit bounded by the pool's time limit. Like pool
// queries they ignore caller cancellation.
func (a *App) Versions(ctx context.Context) (*Versions, error) {
	ctx = context.WithoutCancel(ctx)
	if limit := a.pool.TimeLimit(); limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	db := a.opener.Scratch()
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	// Preparation runs while the connection opens and counts against the limit.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open scratch connection: %w", err)
	}

	v := &Versions{}
	v.Go.Version = runtime.Version()
	v.App.Version = VersionString()
	v.App.Build = fmt.Sprint(version.Build)
	v.App.Note = a.versionNote

	if err := conn.QueryRowContext(ctx, "select sqlite_version()").Scan(&v.SQLite.Version); err != nil {
		return nil, fmt.Errorf("sqlite version: %w", err)
	}

	v.SQLite.Extensions = make(map[string]string)
	for _, p := range extensionProbes {
		var out any
		if err := conn.QueryRowContext(ctx, p.sql).Scan(&out); err != nil {
			continue
		}
		if p.hasVersion {
			v.SQLite.Extensions[p.name] = fmt.Sprint(out)
		} else {
			v.SQLite.Extensions[p.name] = ""
		}
	}

	v.SQLite.FTSVersions = []string{}
	for _, fts := range []string{"FTS5", "FTS4", "FTS3"} {
		stmt := fmt.Sprintf("CREATE VIRTUAL TABLE v%s USING %s (data)", fts, fts)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			continue
		}
		v.SQLite.FTSVersions = append(v.SQLite.FTSVersions, fts)
	}

	rows, err := conn.QueryContext(ctx, "pragma compile_options;")
	if err != nil {
		return nil, fmt.Errorf("compile options: %w", err)
	}
	defer rows.Close()
	v.SQLite.CompileOptions = []string{}
	for rows.Next() {
		var opt string
		if err := rows.Scan(&opt); err != nil {
			return nil, err
		}
		v.SQLite.CompileOptions = append(v.SQLite.CompileOptions, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return v, nil
}
