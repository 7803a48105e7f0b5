package engine

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlgate/internal/catalog"
	"github.com/roach88/sqlgate/internal/store"
	fixtures "github.com/roach88/sqlgate/internal/testutil"
)

const slowCount = `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT count(*) FROM c WHERE x > ?`

func newTestPool(t *testing.T, files []string, opts ...Option) *Pool {
	t.Helper()
	cat, err := catalog.New(files, nil, false)
	require.NoError(t, err)
	opener := store.NewOpener(cat, store.Preparation{})
	t.Cleanup(func() { opener.Close() })

	p := New(opener, opts...)
	t.Cleanup(func() { p.Close() })
	return p
}

func seqRequest(n int, truncate bool) Request {
	return Request{
		Database: "fixtures",
		SQL:      "SELECT n FROM seq WHERE n <= ? ORDER BY n",
		Params:   []any{n},
		Truncate: truncate,
	}
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct {
		requested time.Duration
		def       time.Duration
		want      time.Duration
	}{
		{500 * time.Millisecond, time.Second, 500 * time.Millisecond},
		{2 * time.Second, time.Second, time.Second},
		{0, time.Second, time.Second},
		{-1, time.Second, time.Second},
		{300 * time.Millisecond, 0, 300 * time.Millisecond},
		{0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectiveLimit(tt.requested, tt.def), "requested=%s def=%s", tt.requested, tt.def)
	}
}

func TestRowCap(t *testing.T) {
	assert.Equal(t, 0, rowCap(false, 10, 10))
	assert.Equal(t, 0, rowCap(true, 0, 100))
	assert.Equal(t, 10, rowCap(true, 10, 100))
	assert.Equal(t, 11, rowCap(true, 10, 10))
}

func TestPool_TruncationAtCap(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithMaxRows(10), WithPageSize(20))
	ctx := context.Background()

	res, err := p.Execute(ctx, seqRequest(11, true))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Rows, 10)

	res, err = p.Execute(ctx, seqRequest(10, true))
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Rows, 10)
}

func TestPool_TruncationCapEqualsPageSize(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithMaxRows(10), WithPageSize(10))
	ctx := context.Background()

	res, err := p.Execute(ctx, seqRequest(10, true))
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Rows, 10)

	// One page plus the look-ahead row is not a truncation.
	res, err = p.Execute(ctx, seqRequest(11, true))
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Rows, 11)

	res, err = p.Execute(ctx, seqRequest(12, true))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Rows, 11)
}

func TestPool_RequestOverridesCap(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithMaxRows(10), WithPageSize(20))

	req := seqRequest(20, true)
	req.MaxRows = 5
	res, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Rows, 5)
}

func TestPool_NoTruncateFetchesAll(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithMaxRows(10))

	res, err := p.Execute(context.Background(), seqRequest(20, false))
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Rows, 20)
	assert.Equal(t, []string{"n"}, res.ColumnNames())
}

func TestPool_ColumnsWithoutRows(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)})

	res, err := p.Execute(context.Background(), Request{
		Database: "fixtures",
		SQL:      "SELECT id, name FROM cities WHERE 0",
		Truncate: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{"id", "name"}, res.ColumnNames())
	_, ok := res.First()
	assert.False(t, ok)
}

func TestPool_RowAccess(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)})

	res, err := p.Execute(context.Background(), Request{
		Database: "fixtures",
		SQL:      "SELECT id, name FROM cities WHERE id = :id",
		Params:   []any{sql.Named("id", 1)},
	})
	require.NoError(t, err)

	row, ok := res.First()
	require.True(t, ok)
	assert.Equal(t, 2, row.Len())
	assert.Equal(t, int64(1), row.Index(0))

	name, ok := row.Get("name")
	require.True(t, ok)
	assert.Equal(t, "San Francisco", name)
	_, ok = row.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, map[string]any{"id": int64(1), "name": "San Francisco"}, row.Map())

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"San Francisco"}`, string(data))
	assert.Equal(t, `{"id":1,"name":"San Francisco"}`, string(data), "keys keep column order")
}

func TestPool_InvalidUTF8Replaced(t *testing.T) {
	p := newTestPool(t, nil)

	res, err := p.Execute(context.Background(), Request{
		Database: catalog.MemoryName,
		SQL:      "SELECT CAST(x'ff41' AS TEXT) AS t, x'ff41' AS b",
	})
	require.NoError(t, err)

	row, _ := res.First()
	assert.Equal(t, "\uFFFDA", row.Index(0))
	assert.Equal(t, []byte{0xff, 0x41}, row.Index(1), "blobs stay bytes")
}

func TestPool_InterruptedQuery(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithWorkers(1), WithTimeLimit(50*time.Millisecond))
	ctx, tr := WithTrace(context.Background())

	_, err := p.Execute(ctx, Request{
		Database: "fixtures",
		SQL:      slowCount,
		Params:   []any{0},
	})
	require.Error(t, err)
	require.True(t, IsInterrupted(err))

	var qi *QueryInterrupted
	require.ErrorAs(t, err, &qi)
	assert.Equal(t, slowCount, qi.SQL)
	assert.Equal(t, []any{0}, qi.Params)
	assert.Equal(t, 50*time.Millisecond, qi.Limit)
	assert.Contains(t, qi.Error(), ErrCodeQueryInterrupted)

	// The same worker keeps using the same connection.
	res, err := p.Execute(ctx, Request{Database: "fixtures", SQL: "SELECT count(*) FROM cities"})
	require.NoError(t, err)
	row, _ := res.First()
	assert.Equal(t, int64(3), row.Index(0))

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].Conn, entries[1].Conn)
	assert.True(t, IsInterrupted(entries[0].Err))
	assert.NoError(t, entries[1].Err)
}

func TestPool_RequestLimitTightensDefault(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithTimeLimit(10*time.Second))

	_, err := p.Execute(context.Background(), Request{
		Database:  "fixtures",
		SQL:       slowCount,
		Params:    []any{0},
		TimeLimit: 30 * time.Millisecond,
	})
	var qi *QueryInterrupted
	require.ErrorAs(t, err, &qi)
	assert.Equal(t, 30*time.Millisecond, qi.Limit)
}

func TestPool_DriverErrorUnmodified(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)})

	_, err := p.Execute(context.Background(), Request{
		Database:  "fixtures",
		SQL:       "SELECT * FROM no_such_table",
		LogErrors: true,
	})
	require.Error(t, err)
	assert.False(t, IsInterrupted(err))

	var se sqlite3.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sqlite3.ErrError, se.Code)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestPool_LogErrors(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)})
	req := Request{
		Database: "fixtures",
		SQL:      "SELECT * FROM nope WHERE x = ?",
		Params:   []any{7},
	}

	t.Run("enabled", func(t *testing.T) {
		buf := captureLog(t)
		req := req
		req.LogErrors = true

		_, err := p.Execute(context.Background(), req)
		require.Error(t, err)

		out := buf.String()
		assert.Contains(t, out, "level=ERROR")
		assert.Contains(t, out, `msg="sql error"`)
		assert.Contains(t, out, "conn=fixtures/")
		assert.Contains(t, out, `sql="SELECT * FROM nope WHERE x = ?"`)
		assert.Contains(t, out, "params=[7]")
		assert.Contains(t, out, "no such table: nope")
	})

	t.Run("disabled", func(t *testing.T) {
		buf := captureLog(t)

		_, err := p.Execute(context.Background(), req)
		require.Error(t, err)
		assert.Empty(t, buf.String())
	})

	t.Run("interrupt is not logged", func(t *testing.T) {
		buf := captureLog(t)

		_, err := p.Execute(context.Background(), Request{
			Database:  "fixtures",
			SQL:       fixtures.SlowQuery,
			TimeLimit: 20 * time.Millisecond,
			LogErrors: true,
		})
		require.True(t, IsInterrupted(err))
		assert.Empty(t, buf.String())
	})
}

func TestPool_UnknownDatabase(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)})

	_, err := p.Execute(context.Background(), Request{Database: "nope", SQL: "SELECT 1"})
	assert.ErrorIs(t, err, ErrUnknownDatabase)
}

func TestPool_Closed(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Execute(context.Background(), Request{Database: "fixtures", SQL: "SELECT 1"})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_CallerAbandonmentDoesNotCancel(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithTimeLimit(200*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	pending := p.Submit(ctx, Request{Database: "fixtures", SQL: slowCount, Params: []any{0}})
	cancel()

	_, err := pending.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case <-pending.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned statement never completed")
	}
	_, err = pending.Wait(context.Background())
	assert.True(t, IsInterrupted(err), "statement ran until its own deadline, got %v", err)
}

func TestPool_ConcurrentReaders(t *testing.T) {
	const n = 4
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithWorkers(n))
	ctx, tr := WithTrace(context.Background())

	var wg sync.WaitGroup
	errs := make([]error, n*5)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Execute(ctx, Request{Database: "fixtures", SQL: "SELECT count(*) FROM seq"})
			if err == nil {
				row, _ := res.First()
				if row.Index(0) != int64(20) {
					err = assert.AnError
				}
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	connsByWorker := make(map[string]map[string]bool)
	for _, e := range tr.Entries() {
		if connsByWorker[e.Worker] == nil {
			connsByWorker[e.Worker] = make(map[string]bool)
		}
		connsByWorker[e.Worker][e.Conn] = true
	}
	assert.LessOrEqual(t, len(connsByWorker), n)
	for worker, conns := range connsByWorker {
		assert.Len(t, conns, 1, "worker %s holds one handle per database", worker)
	}
}

func TestPool_IdenticalRequestsIdenticalResults(t *testing.T) {
	p := newTestPool(t, []string{fixtures.Fixtures(t)}, WithMaxRows(5))
	ctx := context.Background()

	req := Request{Database: "fixtures", SQL: "SELECT * FROM addresses ORDER BY id", Truncate: true}
	a, err := p.Execute(ctx, req)
	require.NoError(t, err)
	b, err := p.Execute(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, a.Truncated, b.Truncated)
	require.Len(t, b.Rows, len(a.Rows))
	for i := range a.Rows {
		assert.Equal(t, a.Rows[i].Values(), b.Rows[i].Values())
	}
}

func TestPool_RecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.CreateDB(t, dir, "metricsdb.db", `CREATE TABLE t (x)`)
	p := newTestPool(t, []string{path})
	ctx := context.Background()

	before := testutil.CollectAndCount(metricQueryDuration)

	_, err := p.Execute(ctx, Request{Database: "metricsdb", SQL: "SELECT * FROM t"})
	require.NoError(t, err)
	_, err = p.Execute(ctx, Request{Database: "metricsdb", SQL: "SELECT * FROM missing"})
	require.Error(t, err)

	assert.Equal(t, before+2, testutil.CollectAndCount(metricQueryDuration))
}
