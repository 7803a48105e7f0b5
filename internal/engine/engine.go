package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/sqlgate/internal/store"
)

const (
	// DefaultWorkers is the default number of SQL worker goroutines.
	DefaultWorkers = 3

	// DefaultTimeLimit is the default per-statement time limit.
	DefaultTimeLimit = time.Second

	// DefaultMaxRows is the default row cap for truncated queries.
	DefaultMaxRows = 1000

	// DefaultPageSize is the default page size.
	DefaultPageSize = 100
)

// Request is one query submitted to the Pool. Immutable once submitted.
type Request struct {
	Database string
	SQL      string

	// Params holds positional values or sql.NamedArg values.
	Params []any

	Truncate bool

	// TimeLimit tightens the pool's limit when positive.
	TimeLimit time.Duration

	// PageSize overrides the pool's page size when positive.
	PageSize int

	// MaxRows overrides the pool's row cap when positive.
	MaxRows int

	// LogErrors logs non-interrupt statement failures.
	LogErrors bool
}

// Pool runs queries on a fixed set of worker goroutines.
//
// Each worker owns a store.Registry for its whole life, so a connection is
// only ever used by the goroutine that opened it. Submit is safe from any
// goroutine and never blocks.
//
// No ordering is guaranteed between requests; a given worker runs its
// statements one at a time.
type Pool struct {
	opener *store.Opener
	queue  *taskQueue

	workers   int
	timeLimit time.Duration
	maxRows   int
	pageSize  int

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu        sync.Mutex
	closeErrs []error
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		p.workers = n
	}
}

// WithTimeLimit sets the default per-statement time limit. Zero or negative
// disables the default limit.
func WithTimeLimit(d time.Duration) Option {
	return func(p *Pool) {
		p.timeLimit = d
	}
}

// WithMaxRows sets the default row cap for truncated queries.
func WithMaxRows(n int) Option {
	return func(p *Pool) {
		p.maxRows = n
	}
}

// WithPageSize sets the default page size.
func WithPageSize(n int) Option {
	return func(p *Pool) {
		p.pageSize = n
	}
}

// New starts a Pool over the databases known to opener.
func New(opener *store.Opener, opts ...Option) *Pool {
	p := &Pool{
		opener:    opener,
		queue:     newTaskQueue(),
		workers:   DefaultWorkers,
		timeLimit: DefaultTimeLimit,
		maxRows:   DefaultMaxRows,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}

	for i := 0; i < p.workers; i++ {
		id := "sql-" + uuid.Must(uuid.NewV7()).String()
		p.wg.Add(1)
		go p.work(id)
	}

	slog.Debug("execution pool started",
		"workers", p.workers,
		"time_limit", p.timeLimit,
		"max_rows", p.maxRows,
		"page_size", p.pageSize)
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// TimeLimit returns the default per-statement time limit.
func (p *Pool) TimeLimit() time.Duration {
	return p.timeLimit
}

// Submit queues req and returns immediately. ctx is only used for tracing;
// cancelling it does not stop the statement.
func (p *Pool) Submit(ctx context.Context, req Request) *Pending {
	pending := newPending()

	if _, ok := p.opener.DB(req.Database); !ok {
		pending.complete(nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, req.Database))
		return pending
	}

	t := &task{
		ctx:     ctx,
		req:     req,
		st:      p.statement(req),
		pending: pending,
	}
	if !p.queue.Enqueue(t) {
		pending.complete(nil, ErrPoolClosed)
	}
	return pending
}

// Execute submits req and waits for its result. If ctx ends first Execute
// returns ctx.Err() while the statement still runs to completion on its
// worker.
func (p *Pool) Execute(ctx context.Context, req Request) (*Results, error) {
	return p.Submit(ctx, req).Wait(ctx)
}

// Close stops accepting work, lets workers drain queued tasks, and releases
// every worker's connections. Safe to call more than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.queue.Close()
		p.wg.Wait()
		slog.Debug("execution pool stopped")
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.closeErrs...)
}

func (p *Pool) statement(req Request) statement {
	st := statement{
		sql:       req.SQL,
		params:    req.Params,
		limit:     EffectiveLimit(req.TimeLimit, p.timeLimit),
		truncate:  req.Truncate,
		maxRows:   p.maxRows,
		pageSize:  p.pageSize,
		logErrors: req.LogErrors,
	}
	if req.PageSize > 0 {
		st.pageSize = req.PageSize
	}
	if req.MaxRows > 0 {
		st.maxRows = req.MaxRows
	}
	return st
}

func (p *Pool) work(id string) {
	defer p.wg.Done()

	reg := p.opener.NewRegistry(id)
	defer func() {
		if err := reg.Close(); err != nil {
			slog.Error("close worker connections", "worker", id, "error", err)
			p.mu.Lock()
			p.closeErrs = append(p.closeErrs, err)
			p.mu.Unlock()
		}
	}()

	for {
		t, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		p.run(id, reg, t)
	}
}

func (p *Pool) run(worker string, reg *store.Registry, t *task) {
	start := time.Now()
	res, conn, err := p.runTask(reg, t)
	elapsed := time.Since(start)

	observeQuery(t.req.Database, elapsed, err)
	if tr := traceFrom(t.ctx); tr != nil {
		tr.add(TraceEntry{
			Database: t.req.Database,
			SQL:      t.req.SQL,
			Params:   t.req.Params,
			Duration: elapsed,
			Worker:   worker,
			Conn:     conn,
			Err:      err,
		})
	}

	t.pending.complete(res, err)
}

func (p *Pool) runTask(reg *store.Registry, t *task) (res *Results, connID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panic", "database", t.req.Database, "sql", t.req.SQL, "panic", r)
			res, err = nil, fmt.Errorf("query panicked: %v", r)
			reg.Discard(t.req.Database)
		}
	}()

	ctx := context.WithoutCancel(t.ctx)
	conn, err := reg.Get(ctx, t.req.Database)
	if err != nil {
		return nil, "", err
	}

	res, err = runWithDeadline(ctx, conn, t.st)
	if err != nil && isBrokenConn(err) {
		slog.Warn("discarding broken connection", "conn", conn.String(), "error", err)
		reg.Discard(t.req.Database)
	}
	return res, conn.ID, err
}

// task is one queued Request with its completion handle.
type task struct {
	ctx     context.Context
	req     Request
	st      statement
	pending *Pending
}

// Pending is the completion handle for a submitted Request.
type Pending struct {
	done chan struct{}
	res  *Results
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) complete(res *Results, err error) {
	p.res, p.err = res, err
	close(p.done)
}

// Done is closed when the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request completes or ctx ends. Abandoning the wait
// does not cancel the request.
func (p *Pending) Wait(ctx context.Context) (*Results, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
