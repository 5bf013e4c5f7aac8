// Package aio is the cooperative counterpart of the mongosql root package:
// the same Connection/Cursor method set, but every store round trip returns
// a channel instead of blocking the caller, so a single-threaded event-style
// caller can interleave many in-flight cursors without one goroutine per
// blocking call turning into one OS thread.
//
// Ordering within one Cursor is still strict — only one statement may be
// in flight at a time — enforced with a size-1 weighted semaphore acquired
// before the store call and released once the Result (or error) has been
// recorded, rather than a bespoke event loop.
package aio

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/kitfactory/mongosql"
	"github.com/kitfactory/mongosql/binder"
	"github.com/kitfactory/mongosql/exec"
)

// Result carries either a successful outcome or an error, delivered once on
// the channel Execute/ExecuteMany/Begin/Commit/Rollback/Close return.
type Result struct {
	Err error
}

// RowResult is the async counterpart of Cursor.FetchOne.
type RowResult struct {
	Row []any
	Err error
}

// RowsResult is the async counterpart of Cursor.FetchMany/FetchAll.
type RowsResult struct {
	Rows [][]any
	Err  error
}

// TablesResult is the async counterpart of Connection.ListTables.
type TablesResult struct {
	Names []string
	Err   error
}

// Connection wraps a blocking mongosql.Connection with no additional state
// of its own; serialization lives per-Cursor, not per-Connection, so two
// cursors on the same Connection may have calls in flight concurrently.
type Connection struct {
	inner *mongosql.Connection
}

// Connect dials uri and returns a cooperative Connection bound to dbName.
func Connect(ctx context.Context, uri, dbName string) (*Connection, error) {
	inner, err := mongosql.Connect(ctx, uri, dbName)
	if err != nil {
		return nil, err
	}
	return &Connection{inner: inner}, nil
}

// Cursor returns a new cooperative Cursor bound to this Connection, with its
// own 1-weighted turnstile semaphore.
func (c *Connection) Cursor() *Cursor {
	return &Cursor{inner: c.inner.Cursor(), turnstile: semaphore.NewWeighted(1)}
}

// ListTables delivers the Connection's collection names on the returned
// channel.
func (c *Connection) ListTables(ctx context.Context) <-chan TablesResult {
	out := make(chan TablesResult, 1)
	go func() {
		names, err := c.inner.ListTables(ctx)
		out <- TablesResult{Names: names, Err: err}
	}()
	return out
}

func (c *Connection) Begin(ctx context.Context) <-chan Result {
	return run(func() error { return c.inner.Begin(ctx) })
}

func (c *Connection) Commit(ctx context.Context) <-chan Result {
	return run(func() error { return c.inner.Commit(ctx) })
}

func (c *Connection) Rollback(ctx context.Context) <-chan Result {
	return run(func() error { return c.inner.Rollback(ctx) })
}

func (c *Connection) Close(ctx context.Context) <-chan Result {
	return run(func() error { return c.inner.Close(ctx) })
}

// Cursor is the cooperative counterpart of mongosql.Cursor. Only one
// statement may be in flight per Cursor at a time; a second Execute issued
// before the first's Result arrives queues behind the turnstile rather than
// running concurrently.
type Cursor struct {
	inner     *mongosql.Cursor
	turnstile *semaphore.Weighted
}

// Execute acquires the turnstile, runs sql/params on the underlying blocking
// Cursor in its own goroutine, and releases the turnstile once the Result
// has been sent.
func (c *Cursor) Execute(ctx context.Context, sql string, params binder.Params) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		if err := c.turnstile.Acquire(ctx, 1); err != nil {
			out <- Result{Err: err}
			return
		}
		defer c.turnstile.Release(1)
		out <- Result{Err: c.inner.Execute(ctx, sql, params)}
	}()
	return out
}

// ExecuteMany is the cooperative counterpart of Cursor.ExecuteMany.
func (c *Cursor) ExecuteMany(ctx context.Context, sql string, paramSets []binder.Params) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		if err := c.turnstile.Acquire(ctx, 1); err != nil {
			out <- Result{Err: err}
			return
		}
		defer c.turnstile.Release(1)
		out <- Result{Err: c.inner.ExecuteMany(ctx, sql, paramSets)}
	}()
	return out
}

// RowCount reports the row count of the last completed Execute/ExecuteMany,
// same three cases as the blocking Cursor. Safe to call without acquiring
// the turnstile — it only reads state the last completed call already
// recorded.
func (c *Cursor) RowCount() int64 { return c.inner.RowCount() }

// Description returns the column metadata of the last completed Execute.
func (c *Cursor) Description() []exec.ColumnInfo { return c.inner.Description() }

// FetchOne delivers the next buffered row, serialized behind the same
// turnstile as Execute so a fetch cannot interleave with a concurrent
// Execute on the same Cursor.
func (c *Cursor) FetchOne(ctx context.Context) <-chan RowResult {
	out := make(chan RowResult, 1)
	go func() {
		if err := c.turnstile.Acquire(ctx, 1); err != nil {
			out <- RowResult{Err: err}
			return
		}
		defer c.turnstile.Release(1)
		row, err := c.inner.FetchOne()
		out <- RowResult{Row: row, Err: err}
	}()
	return out
}

// FetchMany delivers up to n of the next buffered rows.
func (c *Cursor) FetchMany(ctx context.Context, n int) <-chan RowsResult {
	out := make(chan RowsResult, 1)
	go func() {
		if err := c.turnstile.Acquire(ctx, 1); err != nil {
			out <- RowsResult{Err: err}
			return
		}
		defer c.turnstile.Release(1)
		rows, err := c.inner.FetchMany(n)
		out <- RowsResult{Rows: rows, Err: err}
	}()
	return out
}

// FetchAll delivers every remaining buffered row.
func (c *Cursor) FetchAll(ctx context.Context) <-chan RowsResult {
	out := make(chan RowsResult, 1)
	go func() {
		if err := c.turnstile.Acquire(ctx, 1); err != nil {
			out <- RowsResult{Err: err}
			return
		}
		defer c.turnstile.Release(1)
		rows, err := c.inner.FetchAll()
		out <- RowsResult{Rows: rows, Err: err}
	}()
	return out
}

// Close releases the Cursor's buffered rowset. It does not need the
// turnstile: clearing buffered state is safe to run alongside a fetch that
// already captured its slice.
func (c *Cursor) Close() <-chan Result {
	return run(func() error { return c.inner.Close() })
}

func run(fn func() error) <-chan Result {
	out := make(chan Result, 1)
	go func() { out <- Result{Err: fn()} }()
	return out
}
