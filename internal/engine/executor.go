package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/sqlgate/internal/store"
)

// EffectiveLimit returns the time limit for one statement.
//
// A positive requested limit only ever tightens the default: (500ms, 1s)
// yields 500ms and (2s, 1s) yields 1s. A non-positive default means no
// process-wide limit, in which case a positive request applies as given.
func EffectiveLimit(requested, def time.Duration) time.Duration {
	if requested <= 0 {
		return def
	}
	if def <= 0 || requested < def {
		return requested
	}
	return def
}

// statement is one unit of SQL to run on a pinned connection.
type statement struct {
	sql       string
	params    []any
	limit     time.Duration
	truncate  bool
	maxRows   int
	pageSize  int
	logErrors bool
}

// runWithDeadline executes st on conn under its time limit and assembles the
// result.
//
// The deadline is derived from a parent that ignores caller cancellation, so
// a caller that stops waiting never aborts the statement; only the limit
// does. The driver interrupts the statement in place when the deadline
// fires and the connection stays usable for the next statement.
func runWithDeadline(ctx context.Context, conn *store.Conn, st statement) (*Results, error) {
	base := context.WithoutCancel(ctx)
	runCtx, cancel := base, context.CancelFunc(func() {})
	if st.limit > 0 {
		runCtx, cancel = context.WithTimeout(base, st.limit)
	}
	defer cancel()

	res, err := query(runCtx, conn, st)
	if err == nil {
		return res, nil
	}

	if st.limit > 0 && isInterruptSignal(err, runCtx) {
		return nil, &QueryInterrupted{
			SQL:    st.sql,
			Params: st.params,
			Limit:  st.limit,
			Err:    err,
		}
	}

	if st.logErrors {
		slog.Error("sql error",
			"conn", conn.String(),
			"sql", st.sql,
			"params", st.params,
			"error", err)
	}
	return nil, err
}

func query(ctx context.Context, conn *store.Conn, st statement) (*Results, error) {
	rows, err := conn.QueryContext(ctx, st.sql, st.params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return assemble(rows, st.truncate, st.maxRows, st.pageSize)
}
