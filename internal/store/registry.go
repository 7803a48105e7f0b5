package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Conn is a pinned connection owned by exactly one Registry.
type Conn struct {
	*sql.Conn

	// ID identifies the handle in diagnostics.
	ID string

	// Database is the catalog name the handle belongs to.
	Database string
}

// String implements fmt.Stringer for log output.
func (c *Conn) String() string {
	return fmt.Sprintf("%s/%s", c.Database, c.ID)
}

// Registry caches at most one connection per database for a single owner.
//
// A Registry is not safe for concurrent use. It belongs to one worker
// goroutine for that goroutine's whole life; handles are never shared with
// or moved to another worker.
type Registry struct {
	opener *Opener
	owner  string
	conns  map[string]*Conn
}

// NewRegistry returns an empty registry for owner.
func (o *Opener) NewRegistry(owner string) *Registry {
	return &Registry{
		opener: o,
		owner:  owner,
		conns:  make(map[string]*Conn),
	}
}

// Get returns the owner's connection to database, opening and preparing it
// on first use. Open failures are returned unmodified and never retried.
func (r *Registry) Get(ctx context.Context, database string) (*Conn, error) {
	if c, ok := r.conns[database]; ok {
		return c, nil
	}

	db, ok := r.opener.DB(database)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, database)
	}

	sc, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		Conn:     sc,
		ID:       uuid.Must(uuid.NewV7()).String(),
		Database: database,
	}
	r.conns[database] = c
	slog.Debug("connection pinned", "owner", r.owner, "conn", c.String())
	return c, nil
}

// Discard closes and forgets the handle for database so the next Get opens
// a fresh one. The underlying driver connection is never handed out again.
func (r *Registry) Discard(database string) {
	c, ok := r.conns[database]
	if !ok {
		return
	}
	delete(r.conns, database)
	// ErrBadConn makes database/sql close the driver connection instead of
	// returning it to the idle pool.
	_ = c.Raw(func(any) error { return driver.ErrBadConn })
	slog.Debug("connection discarded", "owner", r.owner, "conn", c.String())
}

// Len returns the number of cached handles.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Close releases every cached handle.
func (r *Registry) Close() error {
	var firstErr error
	for name, c := range r.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", c.String(), err)
		}
		delete(r.conns, name)
	}
	return firstErr
}
