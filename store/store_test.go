//go:build integration

// Integration tests against a live mongod. They read their connection
// parameters from the environment rather than a flag, since `go test` is the
// only entry point: MONGODB_URI (default "mongodb://localhost:27017") and
// MONGODB_DB (required; skips the whole file if unset, since there is no
// safe default database to create collections in).
package store

import (
	"context"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func testDatabase(t *testing.T) *Database {
	t.Helper()
	dbName := os.Getenv("MONGODB_DB")
	if dbName == "" {
		t.Skip("MONGODB_DB not set, skipping integration test")
	}
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	db, err := Connect(context.Background(), uri, dbName)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background(), "store_integration")
		_ = db.Close(context.Background())
	})
	return db
}

func TestIntegrationCRUDRoundTrip(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()
	collection := "store_integration"

	if err := db.Drop(ctx, collection); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if err := db.CreateCollection(ctx, collection); err != nil {
		t.Fatalf("create collection failed: %v", err)
	}

	ids, err := db.InsertMany(ctx, collection, []bson.D{
		{{Key: "name", Value: "ann"}, {Key: "age", Value: int32(30)}},
		{{Key: "name", Value: "bob"}, {Key: "age", Value: int32(40)}},
		{{Key: "name", Value: "cid"}, {Key: "age", Value: int32(50)}},
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 inserted ids, got %d", len(ids))
	}

	found, err := db.Find(ctx, collection, bson.M{"age": bson.M{"$gte": 40}}, bson.D{{Key: "age", Value: 1}}, nil, nil)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matching documents, got %d", len(found))
	}

	aggregated, err := db.Aggregate(ctx, collection, []bson.D{
		{{Key: "$match", Value: bson.M{"age": bson.M{"$gte": 30}}}},
		{{Key: "$count", Value: "total"}},
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if len(aggregated) != 1 {
		t.Fatalf("expected one aggregate result document, got %d", len(aggregated))
	}

	matched, err := db.UpdateMany(ctx, collection, bson.M{"name": "ann"}, bson.D{{Key: "$set", Value: bson.D{{Key: "age", Value: int32(31)}}}})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if matched != 1 {
		t.Fatalf("expected matched count 1, got %d", matched)
	}

	// A no-op write (matching filter, identical value) still matches.
	noop, err := db.UpdateMany(ctx, collection, bson.M{"name": "ann"}, bson.D{{Key: "$set", Value: bson.D{{Key: "age", Value: int32(31)}}}})
	if err != nil {
		t.Fatalf("no-op update failed: %v", err)
	}
	if noop != 1 {
		t.Fatalf("expected no-op update to still report matched count 1, got %d", noop)
	}

	if err := db.CreateIndex(ctx, collection, "by_name", bson.D{{Key: "name", Value: 1}}); err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	if err := db.DropIndex(ctx, collection, "by_name"); err != nil {
		t.Fatalf("drop index failed: %v", err)
	}

	deleted, err := db.DeleteMany(ctx, collection, bson.M{"name": "bob"})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected deleted count 1, got %d", deleted)
	}

	names, err := db.ListCollectionNames(ctx)
	if err != nil {
		t.Fatalf("list collection names failed: %v", err)
	}
	found2 := false
	for _, n := range names {
		if n == collection {
			found2 = true
		}
	}
	if !found2 {
		t.Fatalf("expected %q among collection names %v", collection, names)
	}

	if err := db.Drop(ctx, collection); err != nil {
		t.Fatalf("final drop failed: %v", err)
	}
}
