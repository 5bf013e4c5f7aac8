// Package sqldriver registers a database/sql driver under the
// "mongodb+dbapi" scheme, backed by the mongosql blocking façade. It exists
// so anything written against Go's standard relational client protocol
// (sql.DB, sqlx, and the rest of that ecosystem) can address a document
// store the same way it would address any SQL database.
package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/kitfactory/mongosql"
	"github.com/kitfactory/mongosql/binder"
)

func init() {
	sql.Register("mongodb+dbapi", &Driver{})
}

// Driver implements driver.Driver.
type Driver struct{}

// Open parses dsn as "mongodb+dbapi://host[:port]/db" and connects.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	mongoURI, dbName, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := mongosql.Connect(context.Background(), mongoURI, dbName)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// parseDSN rewrites a mongodb+dbapi:// DSN into a mongodb:// URI plus the
// database name database/sql needs separately.
func parseDSN(dsn string) (mongoURI, dbName string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("sqldriver: invalid dsn: %w", err)
	}
	if u.Scheme != "mongodb+dbapi" {
		return "", "", fmt.Errorf("sqldriver: unsupported scheme %q", u.Scheme)
	}
	dbName = strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", "", fmt.Errorf("sqldriver: dsn %q has no database name", dsn)
	}
	rewritten := *u
	rewritten.Scheme = "mongodb"
	rewritten.Path = ""
	return rewritten.String(), dbName, nil
}

// Conn implements driver.Conn over a single mongosql.Connection.
type Conn struct {
	conn *mongosql.Connection
}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{conn: c.conn, query: query}, nil
}

func (c *Conn) Close() error {
	return c.conn.Close(context.Background())
}

func (c *Conn) Begin() (driver.Tx, error) {
	if err := c.conn.Begin(context.Background()); err != nil {
		return nil, err
	}
	return &tx{conn: c.conn}, nil
}

type tx struct {
	conn *mongosql.Connection
}

func (t *tx) Commit() error   { return t.conn.Commit(context.Background()) }
func (t *tx) Rollback() error { return t.conn.Rollback(context.Background()) }

// Stmt implements driver.Stmt. Each Exec/Query opens a fresh Cursor, matching
// the module's single-statement-per-Cursor usage pattern.
type Stmt struct {
	conn  *mongosql.Connection
	query string
}

func (s *Stmt) Close() error { return nil }

// NumInput returns -1: the statement's placeholder count isn't known until
// binder.Bind scans it, so database/sql is told to skip its own arity check
// and let Bind report a mismatch as an E4 error instead.
func (s *Stmt) NumInput() int { return -1 }

func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	cur := s.conn.Cursor()
	if err := cur.Execute(context.Background(), s.query, toParams(args)); err != nil {
		return nil, err
	}
	return execResult{rowCount: cur.RowCount()}, nil
}

func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	cur := s.conn.Cursor()
	if err := cur.Execute(context.Background(), s.query, toParams(args)); err != nil {
		return nil, err
	}
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cur.Description()))
	for i, col := range cur.Description() {
		names[i] = col.Name
	}
	return &Rows{columns: names, rows: rows}, nil
}

func toParams(args []driver.Value) binder.Params {
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a
	}
	return binder.Params{Positional: values}
}

// execResult implements driver.Result. LastInsertId has no meaning for a
// document store's generated IDs in this protocol, so it is always 0.
type execResult struct {
	rowCount int64
}

func (r execResult) LastInsertId() (int64, error) { return 0, nil }
func (r execResult) RowsAffected() (int64, error) { return r.rowCount, nil }

// Rows implements driver.Rows over an already-fetched rowset.
type Rows struct {
	columns []string
	rows    [][]any
	pos     int
}

func (r *Rows) Columns() []string { return r.columns }
func (r *Rows) Close() error      { return nil }

func (r *Rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	for i, v := range row {
		dest[i] = v
	}
	return nil
}
