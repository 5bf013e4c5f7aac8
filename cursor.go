package mongosql

import (
	"context"

	"github.com/kitfactory/mongosql/binder"
	"github.com/kitfactory/mongosql/exec"
	"github.com/kitfactory/mongosql/mdberr"
)

// Cursor executes statements against its parent Connection and buffers the
// resulting rowset for Fetch*. A Cursor is not safe for concurrent use.
type Cursor struct {
	conn   *Connection
	result *exec.Result
	pos    int
}

// Execute binds params into sql, plans, and runs it, replacing any
// previously buffered rowset.
func (c *Cursor) Execute(ctx context.Context, sql string, params binder.Params) error {
	plan, err := c.conn.prepare(ctx, sql, params)
	if err != nil {
		return err
	}
	result, err := c.conn.run(ctx, plan)
	if err != nil {
		return err
	}
	c.result = result
	c.pos = 0
	return nil
}

// ExecuteMany runs sql once per entry in paramSets, summing each RowCount
// into the Cursor's final RowCount. It is meant for batches of INSERT/UPDATE/
// DELETE statements; no rowset is buffered afterward.
func (c *Cursor) ExecuteMany(ctx context.Context, sql string, paramSets []binder.Params) error {
	var total int64
	for _, params := range paramSets {
		plan, err := c.conn.prepare(ctx, sql, params)
		if err != nil {
			return err
		}
		result, err := c.conn.run(ctx, plan)
		if err != nil {
			return err
		}
		if result.RowCount > 0 {
			total += result.RowCount
		}
	}
	c.result = &exec.Result{RowCount: total}
	c.pos = 0
	return nil
}

// RowCount reports the row count of the last Execute/ExecuteMany call,
// following spec.md's three cases: rows returned for a query, rows
// written/updated/deleted for a DML statement, -1 for DDL or a no-op.
func (c *Cursor) RowCount() int64 {
	if c.result == nil {
		return -1
	}
	return c.result.RowCount
}

// Description returns the column metadata of the last Execute's rowset, nil
// if nothing has been executed yet or the last statement carried no rowset.
func (c *Cursor) Description() []exec.ColumnInfo {
	if c.result == nil {
		return nil
	}
	return c.result.Description
}

// FetchOne returns the next buffered row, or nil when the rowset is
// exhausted.
func (c *Cursor) FetchOne() ([]any, error) {
	if c.result == nil {
		return nil, mdberr.New(mdberr.E5, "no statement has been executed on this cursor")
	}
	if c.pos >= len(c.result.Rows) {
		return nil, nil
	}
	row := c.result.Rows[c.pos]
	c.pos++
	return row, nil
}

// FetchMany returns up to n of the next buffered rows.
func (c *Cursor) FetchMany(n int) ([][]any, error) {
	if c.result == nil {
		return nil, mdberr.New(mdberr.E5, "no statement has been executed on this cursor")
	}
	if c.pos >= len(c.result.Rows) {
		return nil, nil
	}
	end := c.pos + n
	if end > len(c.result.Rows) {
		end = len(c.result.Rows)
	}
	rows := c.result.Rows[c.pos:end]
	c.pos = end
	return rows, nil
}

// FetchAll returns every remaining buffered row.
func (c *Cursor) FetchAll() ([][]any, error) {
	if c.result == nil {
		return nil, mdberr.New(mdberr.E5, "no statement has been executed on this cursor")
	}
	rows := c.result.Rows[c.pos:]
	c.pos = len(c.result.Rows)
	return rows, nil
}

// Close releases the Cursor's buffered rowset. The parent Connection is
// unaffected and may open further cursors.
func (c *Cursor) Close() error {
	c.result = nil
	c.pos = 0
	return nil
}
