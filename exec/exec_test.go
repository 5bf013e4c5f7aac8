package exec

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kitfactory/mongosql/planner"
)

type fakeStore struct {
	findDocs []bson.D
	aggDocs  []bson.D
	insertID []any
	matched  int64
	deleted  int64
}

func (f *fakeStore) Find(ctx context.Context, collection string, filter bson.M, sort bson.D, skip, limit *int64) ([]bson.D, error) {
	return f.findDocs, nil
}
func (f *fakeStore) Aggregate(ctx context.Context, collection string, stages []bson.D) ([]bson.D, error) {
	return f.aggDocs, nil
}
func (f *fakeStore) InsertMany(ctx context.Context, collection string, docs []bson.D) ([]any, error) {
	return f.insertID, nil
}
func (f *fakeStore) UpdateMany(ctx context.Context, collection string, filter bson.M, update bson.D) (int64, error) {
	return f.matched, nil
}
func (f *fakeStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return f.deleted, nil
}
func (f *fakeStore) CreateCollection(ctx context.Context, name string) error { return nil }
func (f *fakeStore) Drop(ctx context.Context, name string) error            { return nil }
func (f *fakeStore) CreateIndex(ctx context.Context, collection, name string, keys bson.D) error {
	return nil
}
func (f *fakeStore) DropIndex(ctx context.Context, collection, name string) error { return nil }

func TestFindPlanRowCountAndDescription(t *testing.T) {
	store := &fakeStore{findDocs: []bson.D{
		{{Key: "_id", Value: "x"}, {Key: "id", Value: 1}, {Key: "name", Value: "ann"}},
		{{Key: "_id", Value: "y"}, {Key: "id", Value: 2}, {Key: "name", Value: "bob"}},
	}}
	plan := &planner.FindPlan{Collection: "users"}
	result, err := Run(context.Background(), plan, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("expected rowcount 2, got %d", result.RowCount)
	}
	if len(result.Description) != 2 || result.Description[0].Name != "id" || result.Description[1].Name != "name" {
		t.Fatalf("unexpected description: %+v", result.Description)
	}
	if result.Rows[0][0] != 1 || result.Rows[0][1] != "ann" {
		t.Fatalf("unexpected row: %+v", result.Rows[0])
	}
}

func TestExplicitColumnsOverrideWildcardResolution(t *testing.T) {
	store := &fakeStore{findDocs: []bson.D{{{Key: "id", Value: 1}, {Key: "name", Value: "ann"}}}}
	plan := &planner.FindPlan{Collection: "users", Columns: []planner.Column{{Alias: "name"}}}
	result, err := Run(context.Background(), plan, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Description) != 1 || result.Description[0].Name != "name" {
		t.Fatalf("unexpected description: %+v", result.Description)
	}
	if result.Rows[0][0] != "ann" {
		t.Fatalf("unexpected row: %+v", result.Rows[0])
	}
}

func TestEmptyFindResultYieldsZeroColumns(t *testing.T) {
	store := &fakeStore{}
	plan := &planner.FindPlan{Collection: "users"}
	result, err := Run(context.Background(), plan, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RowCount != 0 || len(result.Description) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestInsertRowCountIsInsertedDocumentCount(t *testing.T) {
	store := &fakeStore{insertID: []any{"a", "b", "c"}}
	plan := &planner.InsertPlan{Collection: "users"}
	result, err := Run(context.Background(), plan, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RowCount != 3 {
		t.Fatalf("expected rowcount 3, got %d", result.RowCount)
	}
}

func TestUpdateRowCountIsMatchedCount(t *testing.T) {
	store := &fakeStore{matched: 5}
	plan := &planner.UpdatePlan{Collection: "users"}
	result, err := Run(context.Background(), plan, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RowCount != 5 {
		t.Fatalf("expected rowcount 5, got %d", result.RowCount)
	}
}

func TestDeleteRowCountIsDeletedCount(t *testing.T) {
	store := &fakeStore{deleted: 2}
	plan := &planner.DeletePlan{Collection: "users"}
	result, err := Run(context.Background(), plan, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("expected rowcount 2, got %d", result.RowCount)
	}
}

func TestDDLAndNoOpRowCountIsNegativeOne(t *testing.T) {
	store := &fakeStore{}
	ddl := &planner.DDLPlan{Kind: planner.CreateCollection, Collection: "widgets"}
	result, err := Run(context.Background(), ddl, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RowCount != -1 {
		t.Fatalf("expected rowcount -1 for DDL, got %d", result.RowCount)
	}

	noop := &planner.NoOpPlan{}
	result, err = Run(context.Background(), noop, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RowCount != -1 {
		t.Fatalf("expected rowcount -1 for no-op, got %d", result.RowCount)
	}
}

func TestTypeShapingConvertsStoreNativeTypes(t *testing.T) {
	oid := primitive.NewObjectID()
	dec, _ := primitive.ParseDecimal128("12.50")
	now := time.Now().UTC().Truncate(time.Millisecond)
	store := &fakeStore{findDocs: []bson.D{
		{
			{Key: "id", Value: oid},
			{Key: "price", Value: dec},
			{Key: "created_at", Value: primitive.NewDateTimeFromTime(now)},
			{Key: "missing", Value: nil},
		},
	}}
	plan := &planner.FindPlan{Collection: "widgets"}
	result, err := Run(context.Background(), plan, store)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	row := result.Rows[0]
	if row[0] != oid.Hex() {
		t.Fatalf("expected ObjectID hex string, got %+v", row[0])
	}
	if row[1] != "12.50" {
		t.Fatalf("expected canonical decimal string, got %+v", row[1])
	}
	if !row[2].(time.Time).Equal(now) {
		t.Fatalf("expected matching time.Time, got %+v", row[2])
	}
	if row[3] != nil {
		t.Fatalf("expected nil for missing field, got %+v", row[3])
	}
}
