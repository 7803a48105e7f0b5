package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/sqlgate/internal/catalog"
)

var metricConnectionsOpened = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqlgate_connections_opened_total",
		Help: "Number of prepared SQLite connections opened, per database.",
	},
	[]string{"database"},
)

// ErrUnknownDatabase is returned for a database name not in the catalog.
var ErrUnknownDatabase = errors.New("unknown database")

// Func is a custom SQL function installed on every connection.
// Impl is any Go function accepted by sqlite3.SQLiteConn.RegisterFunc.
type Func struct {
	Name string
	Impl any
	Pure bool
}

// PrepareFunc runs once on every newly opened connection, after the
// built-in preparation steps.
type PrepareFunc func(conn *sqlite3.SQLiteConn) error

// Preparation is the one-time setup applied to each opened connection.
type Preparation struct {
	// Functions are registered in order.
	Functions []Func

	// Extensions are shared library paths. A "path:entrypoint" form selects a
	// non-default entry point.
	Extensions []string

	// CacheSizeKB sets PRAGMA cache_size when non-zero.
	CacheSizeKB int

	// Callbacks run last, in registration order.
	Callbacks []PrepareFunc
}

// Opener owns one *sql.DB per catalog database. Every driver connection it
// hands out has been prepared exactly once.
//
// The *sql.DB handles are created up front and never change, so an Opener is
// safe for concurrent use without locking.
type Opener struct {
	catalog *catalog.Catalog
	prep    Preparation
	driver  *sqlite3.SQLiteDriver
	dbs     map[string]*sql.DB
}

// NewOpener builds the per-database handles. No connection is opened until
// a Registry asks for one.
func NewOpener(cat *catalog.Catalog, prep Preparation) *Opener {
	o := &Opener{
		catalog: cat,
		prep:    prep,
		dbs:     make(map[string]*sql.DB),
	}

	var plain []string
	for _, ext := range prep.Extensions {
		if _, _, ok := splitExtension(ext); !ok {
			plain = append(plain, ext)
		}
	}
	o.driver = &sqlite3.SQLiteDriver{
		Extensions:  plain,
		ConnectHook: o.prepare,
	}

	for _, db := range cat.All() {
		o.dbs[db.Name] = sql.OpenDB(&connector{
			driver:   o.driver,
			dsn:      DSN(db),
			database: db.Name,
		})
	}
	return o
}

// DSN returns the driver data source name for a database.
//
// In-memory databases get a private anonymous database per connection.
// Mutable files open read-only; immutable files open with immutable=1 so
// SQLite skips change detection.
func DSN(db *catalog.Database) string {
	if db.IsMemory {
		return ":memory:"
	}
	qs := "mode=ro"
	if !db.IsMutable {
		qs = "immutable=1"
	}
	return "file:" + escapeURIPath(db.Path) + "?" + qs
}

// escapeURIPath escapes the characters SQLite URI filenames treat specially.
func escapeURIPath(path string) string {
	return strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
}

// splitExtension splits "path:entrypoint". Drive-letter prefixes like "C:"
// are not treated as separators.
func splitExtension(ext string) (path, entry string, ok bool) {
	i := strings.LastIndex(ext, ":")
	if i <= 1 || i == len(ext)-1 {
		return ext, "", false
	}
	return ext[:i], ext[i+1:], true
}

// prepare is the driver ConnectHook. Plain-path extensions were already
// loaded by the driver before it runs.
func (o *Opener) prepare(conn *sqlite3.SQLiteConn) error {
	for _, fn := range o.prep.Functions {
		if err := conn.RegisterFunc(fn.Name, fn.Impl, fn.Pure); err != nil {
			return fmt.Errorf("register function %s: %w", fn.Name, err)
		}
	}

	for _, ext := range o.prep.Extensions {
		path, entry, ok := splitExtension(ext)
		if !ok {
			continue
		}
		if err := conn.LoadExtension(path, entry); err != nil {
			return err
		}
	}

	if o.prep.CacheSizeKB > 0 {
		pragma := fmt.Sprintf("PRAGMA cache_size=-%d", o.prep.CacheSizeKB)
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	for _, cb := range o.prep.Callbacks {
		if err := cb(conn); err != nil {
			return err
		}
	}
	return nil
}

// DB returns the handle for a database name.
func (o *Opener) DB(name string) (*sql.DB, bool) {
	db, ok := o.dbs[name]
	return db, ok
}

// Catalog returns the catalog the Opener was built from.
func (o *Opener) Catalog() *catalog.Catalog {
	return o.catalog
}

// Scratch returns a single-connection, prepared, private in-memory database.
// The caller must Close it.
func (o *Opener) Scratch() *sql.DB {
	db := sql.OpenDB(&connector{driver: o.driver, dsn: ":memory:", database: "scratch"})
	db.SetMaxOpenConns(1)
	return db
}

// Close closes every per-database handle. Connections still pinned by a
// Registry are closed when that Registry releases them.
func (o *Opener) Close() error {
	var firstErr error
	for name, db := range o.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	return firstErr
}

// connector opens driver connections for one DSN without a global
// sql.Register call.
type connector struct {
	driver   *sqlite3.SQLiteDriver
	dsn      string
	database string
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	metricConnectionsOpened.WithLabelValues(c.database).Inc()
	slog.Debug("connection opened", "database", c.database, "dsn", c.dsn)
	return conn, nil
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}
