package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlgate/internal/store"
)

// ErrCodeQueryInterrupted identifies a statement aborted by its deadline.
const ErrCodeQueryInterrupted = "QUERY_INTERRUPTED"

var (
	// ErrPoolClosed is returned for work submitted after Close.
	ErrPoolClosed = errors.New("execution pool is closed")

	// ErrUnknownDatabase is returned for a database name not in the catalog.
	ErrUnknownDatabase = store.ErrUnknownDatabase
)

// QueryInterrupted reports a statement that exceeded its time limit.
//
// It carries the original SQL and parameters so callers can render a
// "query took too long" response. It is always recoverable.
type QueryInterrupted struct {
	SQL    string
	Params []any
	Limit  time.Duration

	// Err is the driver or context error that signaled the abort.
	Err error
}

// Error implements the error interface.
func (e *QueryInterrupted) Error() string {
	return fmt.Sprintf("%s: query exceeded %s time limit: %s", ErrCodeQueryInterrupted, e.Limit, e.SQL)
}

// Unwrap returns the underlying abort signal.
func (e *QueryInterrupted) Unwrap() error {
	return e.Err
}

// IsInterrupted returns true if err is, or wraps, a QueryInterrupted.
func IsInterrupted(err error) bool {
	var qi *QueryInterrupted
	return errors.As(err, &qi)
}

// isInterruptSignal reports whether err is the driver's abort signal for a
// statement run under deadlineCtx: SQLITE_INTERRUPT, or our own deadline
// surfacing through database/sql.
func isInterruptSignal(err error, deadlineCtx context.Context) bool {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrInterrupt {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(deadlineCtx.Err(), context.DeadlineExceeded)
}

// isBrokenConn reports errors after which a connection must not be reused.
func isBrokenConn(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}
