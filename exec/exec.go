// Package exec applies a planner.Plan to the document store, shapes the
// resulting documents into positional row tuples, and computes the
// row-count/description metadata the façade exposes.
package exec

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kitfactory/mongosql/mdberr"
	"github.com/kitfactory/mongosql/planner"
)

// Store is the subset of store.Database the executor issues operations
// against.
type Store interface {
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

// ColumnInfo is the column metadata position of Result.Description. Only
// Name is populated; TypeCode is always left empty.
type ColumnInfo struct {
	Name     string
	TypeCode string
}

// Result is the outcome of executing one Plan: row tuples in declaration
// order, column metadata, and a row count following spec.md's three cases.
type Result struct {
	Rows        [][]any
	Description []ColumnInfo
	RowCount    int64
}

// Run dispatches on plan's concrete type, issues the corresponding store
// operation, and shapes the result.
func Run(ctx context.Context, plan planner.Plan, store Store) (*Result, error) {
	switch p := plan.(type) {
	case *planner.FindPlan:
		return runFind(ctx, p, store)
	case *planner.AggregatePlan:
		return runAggregate(ctx, p, store)
	case *planner.InsertPlan:
		return runInsert(ctx, p, store)
	case *planner.UpdatePlan:
		return runUpdate(ctx, p, store)
	case *planner.DeletePlan:
		return runDelete(ctx, p, store)
	case *planner.DDLPlan:
		return runDDL(ctx, p, store)
	case *planner.NoOpPlan:
		return &Result{RowCount: -1}, nil
	default:
		return nil, mdberr.New(mdberr.E5, "unsupported plan shape %T", plan)
	}
}

func runFind(ctx context.Context, p *planner.FindPlan, store Store) (*Result, error) {
	docs, err := store.Find(ctx, p.Collection, p.Filter, p.Sort, p.Skip, p.Limit)
	if err != nil {
		return nil, err
	}
	return shapeRows(docs, p.Columns), nil
}

func runAggregate(ctx context.Context, p *planner.AggregatePlan, store Store) (*Result, error) {
	docs, err := store.Aggregate(ctx, p.Collection, p.Stages)
	if err != nil {
		return nil, err
	}
	return shapeRows(docs, p.Columns), nil
}

func runInsert(ctx context.Context, p *planner.InsertPlan, store Store) (*Result, error) {
	ids, err := store.InsertMany(ctx, p.Collection, p.Documents)
	if err != nil {
		return nil, err
	}
	return &Result{RowCount: int64(len(ids))}, nil
}

func runUpdate(ctx context.Context, p *planner.UpdatePlan, store Store) (*Result, error) {
	n, err := store.UpdateMany(ctx, p.Collection, p.Filter, p.Set)
	if err != nil {
		return nil, err
	}
	return &Result{RowCount: n}, nil
}

func runDelete(ctx context.Context, p *planner.DeletePlan, store Store) (*Result, error) {
	n, err := store.DeleteMany(ctx, p.Collection, p.Filter)
	if err != nil {
		return nil, err
	}
	return &Result{RowCount: n}, nil
}

func runDDL(ctx context.Context, p *planner.DDLPlan, store Store) (*Result, error) {
	var err error
	switch p.Kind {
	case planner.CreateCollection:
		err = store.CreateCollection(ctx, p.Collection)
	case planner.DropCollection:
		err = store.Drop(ctx, p.Collection)
	case planner.CreateIndex:
		err = store.CreateIndex(ctx, p.Collection, p.IndexName, p.IndexKeys)
	case planner.DropIndex:
		err = store.DropIndex(ctx, p.Collection, p.IndexName)
	default:
		return nil, mdberr.New(mdberr.E5, "unsupported DDL kind")
	}
	if err != nil {
		return nil, err
	}
	return &Result{RowCount: -1}, nil
}

// shapeRows converts raw documents into positional row tuples. A nil
// columns list (wildcard select) is resolved from the first document's own
// field order, excluding the store's internal _id.
func shapeRows(docs []bson.D, columns []planner.Column) *Result {
	names := columnNames(columns, docs)
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		fields := fieldMap(doc)
		row := make([]any, len(names))
		for i, name := range names {
			row[i] = shapeValue(fields[name])
		}
		rows = append(rows, row)
	}
	desc := make([]ColumnInfo, len(names))
	for i, name := range names {
		desc[i] = ColumnInfo{Name: name}
	}
	return &Result{Rows: rows, Description: desc, RowCount: int64(len(rows))}
}

func fieldMap(doc bson.D) map[string]any {
	m := make(map[string]any, len(doc))
	for _, e := range doc {
		m[e.Key] = e.Value
	}
	return m
}

func columnNames(columns []planner.Column, docs []bson.D) []string {
	if columns != nil {
		names := make([]string, len(columns))
		for i, c := range columns {
			names[i] = c.Alias
		}
		return names
	}
	if len(docs) == 0 {
		return nil
	}
	var names []string
	for _, e := range docs[0] {
		if e.Key == "_id" {
			continue
		}
		names = append(names, e.Key)
	}
	return names
}

// shapeValue applies the document-to-Go type conversions: dates, ObjectId,
// Decimal128, and UUID (BSON binary subtype 4) all become their canonical
// Go/string forms; anything absent from the document is nil.
func shapeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case primitive.DateTime:
		return t.Time()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case primitive.Binary:
		if t.Subtype == 0x04 {
			if id, err := uuid.FromBytes(t.Data); err == nil {
				return id.String()
			}
		}
		return t.Data
	case time.Time:
		return t
	default:
		return t
	}
}
