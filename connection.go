// Package mongosql exposes a relational client surface — parameterized SQL
// in, tabular rowsets out — over a document store. Connection and Cursor
// mirror the standard relational client protocol's shape: connect, get a
// cursor, execute, fetch.
package mongosql

import (
	"context"

	"go.uber.org/zap"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kitfactory/mongosql/binder"
	"github.com/kitfactory/mongosql/exec"
	"github.com/kitfactory/mongosql/internal/obslog"
	"github.com/kitfactory/mongosql/mdberr"
	"github.com/kitfactory/mongosql/planner"
	"github.com/kitfactory/mongosql/sqlfront"
	"github.com/kitfactory/mongosql/store"
)

// backend is the subset of *store.Database a Connection needs — the union
// of planner.StoreReader (eager subquery evaluation) and exec.Store (plan
// execution), plus the lifecycle methods the façade itself calls. Kept as
// an interface so tests can substitute a fake store without a live Mongo
// deployment.
type backend interface {
	Close(ctx context.Context) error
	ListCollectionNames(ctx context.Context) ([]string, error)
	Find(ctx context.Context, collection string, filter bson.M, sort bson.D, skip, limit *int64) ([]bson.D, error)
	Aggregate(ctx context.Context, collection string, stages []bson.D) ([]bson.D, error)
	InsertMany(ctx context.Context, collection string, docs []bson.D) ([]any, error)
	UpdateMany(ctx context.Context, collection string, filter bson.M, update bson.D) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error)
	CreateCollection(ctx context.Context, name string) error
	Drop(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, collection, name string, keys bson.D) error
	DropIndex(ctx context.Context, collection, name string) error
}

// Connection holds one store handle for its lifetime. It is not safe for
// concurrent use by multiple goroutines; each Cursor it produces shares that
// restriction.
type Connection struct {
	db  backend
	log *zap.Logger
}

// Option configures a Connection at Connect time.
type Option func(*Connection)

// WithLogger routes a Connection's diagnostic logging through log instead of
// the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Connection) { c.log = log }
}

// Connect dials uri and returns a Connection bound to dbName.
func Connect(ctx context.Context, uri, dbName string, opts ...Option) (*Connection, error) {
	db, err := store.Connect(ctx, uri, dbName)
	if err != nil {
		return nil, err
	}
	return newConnection(db, opts...), nil
}

func newConnection(db backend, opts ...Option) *Connection {
	c := &Connection{db: db, log: obslog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log.Debug("connected")
	return c
}

// Cursor returns a new Cursor bound to this Connection.
func (c *Connection) Cursor() *Cursor {
	return &Cursor{conn: c}
}

// ListTables returns every collection name visible in this connection's
// database.
func (c *Connection) ListTables(ctx context.Context) ([]string, error) {
	return c.db.ListCollectionNames(ctx)
}

// Begin, Commit, and Rollback are accepted for API-surface compatibility
// with the standard relational client protocol; the underlying store has no
// multi-statement transaction concept this module exposes, so each is a
// no-op recorded as a NoOpPlan if routed through Cursor.Execute, and a
// direct no-op here.
func (c *Connection) Begin(ctx context.Context) error    { return nil }
func (c *Connection) Commit(ctx context.Context) error   { return nil }
func (c *Connection) Rollback(ctx context.Context) error { return nil }

// Close releases the underlying store connection. Safe to call once; a
// second call is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close(ctx)
	c.db = nil
	return err
}

// prepare runs sql/params through the Binder, Parser, Validator, and Plan
// Builder, returning a ready-to-execute Plan.
func (c *Connection) prepare(ctx context.Context, sql string, params binder.Params) (planner.Plan, error) {
	bound, err := binder.Bind(sql, params)
	if err != nil {
		c.log.Warn("bind failed", zap.Error(err), zap.String("sql", sql))
		return nil, err
	}
	stmt, err := sqlfront.Parse(bound.SQL)
	if err != nil {
		c.log.Warn("parse failed", zap.Error(err))
		return nil, err
	}
	if err := sqlfront.Validate(stmt); err != nil {
		c.log.Warn("validate failed", zap.Error(err))
		return nil, err
	}
	plan, err := planner.Build(ctx, stmt, bound, c.db)
	if err != nil {
		c.log.Warn("plan build failed", zap.Error(err))
		return nil, err
	}
	return plan, nil
}

func (c *Connection) run(ctx context.Context, plan planner.Plan) (*exec.Result, error) {
	if c.db == nil {
		return nil, mdberr.New(mdberr.E5, "connection is closed")
	}
	result, err := exec.Run(ctx, plan, c.db)
	if err != nil {
		c.log.Warn("exec failed", zap.Error(err))
	}
	return result, err
}
