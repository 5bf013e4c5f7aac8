package mongosql

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kitfactory/mongosql/binder"
)

// fakeBackend is a minimal backend double: it hands back canned documents
// regardless of the filter it is given. Plan-shape and filter-lowering
// correctness are exercised in the planner and exec packages directly; this
// file only exercises the Connection/Cursor wiring around a Plan.
type fakeBackend struct {
	findDocs   []bson.D
	aggDocs    []bson.D
	insertIDs  []any
	modified   int64
	deleted    int64
	tables     []string
	closed     bool
	collection string
}

func (f *fakeBackend) Close(ctx context.Context) error { f.closed = true; return nil }
func (f *fakeBackend) ListCollectionNames(ctx context.Context) ([]string, error) {
	return f.tables, nil
}
func (f *fakeBackend) Find(ctx context.Context, collection string, filter bson.M, sort bson.D, skip, limit *int64) ([]bson.D, error) {
	return f.findDocs, nil
}
func (f *fakeBackend) Aggregate(ctx context.Context, collection string, stages []bson.D) ([]bson.D, error) {
	return f.aggDocs, nil
}
func (f *fakeBackend) InsertMany(ctx context.Context, collection string, docs []bson.D) ([]any, error) {
	return f.insertIDs, nil
}
func (f *fakeBackend) UpdateMany(ctx context.Context, collection string, filter bson.M, update bson.D) (int64, error) {
	return f.modified, nil
}
func (f *fakeBackend) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return f.deleted, nil
}
func (f *fakeBackend) CreateCollection(ctx context.Context, name string) error { return nil }
func (f *fakeBackend) Drop(ctx context.Context, name string) error            { return nil }
func (f *fakeBackend) CreateIndex(ctx context.Context, collection, name string, keys bson.D) error {
	return nil
}
func (f *fakeBackend) DropIndex(ctx context.Context, collection, name string) error { return nil }

func TestCursorExecuteAndFetchAllRoundTrip(t *testing.T) {
	fb := &fakeBackend{findDocs: []bson.D{{{Key: "id", Value: 1}, {Key: "name", Value: "Alice"}}}}
	conn := newConnection(fb)
	cur := conn.Cursor()

	err := cur.Execute(context.Background(), "SELECT id,name FROM users WHERE id=%s", binder.Params{Positional: []any{1}})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if cur.RowCount() != 1 {
		t.Fatalf("expected rowcount 1, got %d", cur.RowCount())
	}
	rows, err := cur.FetchAll()
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != 1 || rows[0][1] != "Alice" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestCursorFetchOnePaginatesAcrossCalls(t *testing.T) {
	fb := &fakeBackend{findDocs: []bson.D{
		{{Key: "id", Value: 1}},
		{{Key: "id", Value: 2}},
	}}
	conn := newConnection(fb)
	cur := conn.Cursor()
	if err := cur.Execute(context.Background(), "SELECT id FROM users", binder.Params{}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	first, err := cur.FetchOne()
	if err != nil || first[0] != 1 {
		t.Fatalf("unexpected first row: %v, err %v", first, err)
	}
	second, err := cur.FetchOne()
	if err != nil || second[0] != 2 {
		t.Fatalf("unexpected second row: %v, err %v", second, err)
	}
	third, err := cur.FetchOne()
	if err != nil || third != nil {
		t.Fatalf("expected exhausted cursor, got %v, err %v", third, err)
	}
}

func TestCursorExecuteManySumsRowCounts(t *testing.T) {
	fb := &fakeBackend{insertIDs: []any{"a"}}
	conn := newConnection(fb)
	cur := conn.Cursor()
	sets := []binder.Params{
		{Positional: []any{1, "A"}},
		{Positional: []any{2, "B"}},
	}
	err := cur.ExecuteMany(context.Background(), "INSERT INTO users (id,name) VALUES (%s,%s)", sets)
	if err != nil {
		t.Fatalf("execute many failed: %v", err)
	}
	if cur.RowCount() != 2 {
		t.Fatalf("expected summed rowcount 2, got %d", cur.RowCount())
	}
}

func TestDeleteWithoutWhereFailsSafetyGuard(t *testing.T) {
	fb := &fakeBackend{}
	conn := newConnection(fb)
	cur := conn.Cursor()
	err := cur.Execute(context.Background(), "DELETE FROM users", binder.Params{})
	if err == nil {
		t.Fatal("expected an error for DELETE without WHERE")
	}
}

func TestDDLStatementReportsNegativeOneRowCount(t *testing.T) {
	fb := &fakeBackend{}
	conn := newConnection(fb)
	cur := conn.Cursor()
	if err := cur.Execute(context.Background(), "CREATE TABLE widgets (id INT)", binder.Params{}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if cur.RowCount() != -1 {
		t.Fatalf("expected rowcount -1 for DDL, got %d", cur.RowCount())
	}
}

func TestBeginCommitRollbackAreNoOps(t *testing.T) {
	fb := &fakeBackend{}
	conn := newConnection(fb)
	ctx := context.Background()
	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
}

func TestListTablesDelegatesToBackend(t *testing.T) {
	fb := &fakeBackend{tables: []string{"users", "orders"}}
	conn := newConnection(fb)
	names, err := conn.ListTables(context.Background())
	if err != nil {
		t.Fatalf("list tables failed: %v", err)
	}
	if len(names) != 2 || names[0] != "users" || names[1] != "orders" {
		t.Fatalf("unexpected table list: %+v", names)
	}
}

func TestConnectionCloseIsIdempotentAndRejectsFurtherUse(t *testing.T) {
	fb := &fakeBackend{}
	conn := newConnection(fb)
	ctx := context.Background()
	if err := conn.Close(ctx); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := conn.Close(ctx); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
	cur := conn.Cursor()
	if err := cur.Execute(ctx, "SELECT id FROM users", binder.Params{}); err == nil {
		t.Fatal("expected execute on a closed connection to fail")
	}
}
