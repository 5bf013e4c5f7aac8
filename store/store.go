// Package store is the thin transport layer between the Plan Executor and a
// document store. It owns the one mongo-driver client handle per Connection
// and is the single place a driver error gets wrapped into mdberr.E5.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kitfactory/mongosql/mdberr"
)

// Database wraps one store connection scoped to a single database name.
type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and returns a Database bound to dbName. The caller owns
// the returned Database's lifetime and must call Close when done with it.
func Connect(ctx context.Context, uri, dbName string) (*Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, mdberr.Wrap(mdberr.E5, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, mdberr.Wrap(mdberr.E5, err)
	}
	return &Database{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the underlying store client.
func (d *Database) Close(ctx context.Context) error {
	if err := d.client.Disconnect(ctx); err != nil {
		return mdberr.Wrap(mdberr.E5, err)
	}
	return nil
}

// Collection returns a handle for name within this database.
func (d *Database) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

// ListCollectionNames returns every collection name in this database.
func (d *Database) ListCollectionNames(ctx context.Context) ([]string, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, mdberr.Wrap(mdberr.E5, err)
	}
	return names, nil
}

// CreateCollection creates an empty collection named name.
func (d *Database) CreateCollection(ctx context.Context, name string) error {
	if err := d.db.CreateCollection(ctx, name); err != nil {
		return mdberr.Wrap(mdberr.E5, err)
	}
	return nil
}

// Drop drops the collection named name. Dropping a collection that does not
// exist is not an error, matching MongoDB's own drop semantics.
func (d *Database) Drop(ctx context.Context, name string) error {
	if err := d.db.Collection(name).Drop(ctx); err != nil {
		return mdberr.Wrap(mdberr.E5, err)
	}
	return nil
}

// Find runs a filtered, sorted, paginated query against collection and
// decodes every matching document, preserving each document's own field
// order. It also satisfies planner.StoreReader, letting the Plan Builder
// evaluate EXISTS/IN(subquery) eagerly.
func (d *Database) Find(ctx context.Context, collection string, filter bson.M, sort bson.D, skip, limit *int64) ([]bson.D, error) {
	opts := options.Find()
	if len(sort) > 0 {
		opts.SetSort(sort)
	}
	if skip != nil {
		opts.SetSkip(*skip)
	}
	if limit != nil {
		opts.SetLimit(*limit)
	}
	cursor, err := d.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, mdberr.Wrap(mdberr.E5, err)
	}
	defer cursor.Close(ctx)
	return decodeAll(ctx, cursor)
}

// Aggregate runs a pipeline against collection and decodes every resulting
// document, preserving each document's own field order (needed to resolve
// a wildcard select's column list from the first returned row).
func (d *Database) Aggregate(ctx context.Context, collection string, stages []bson.D) ([]bson.D, error) {
	cursor, err := d.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, mdberr.Wrap(mdberr.E5, err)
	}
	defer cursor.Close(ctx)
	return decodeAll(ctx, cursor)
}

// InsertMany inserts docs into collection and returns the inserted IDs, in
// order.
func (d *Database) InsertMany(ctx context.Context, collection string, docs []bson.D) ([]any, error) {
	items := make([]any, len(docs))
	for i, doc := range docs {
		items[i] = doc
	}
	result, err := d.db.Collection(collection).InsertMany(ctx, items)
	if err != nil {
		return nil, mdberr.Wrap(mdberr.E5, err)
	}
	return result.InsertedIDs, nil
}

// UpdateMany applies update to every document in collection matching filter
// and reports how many matched. MatchedCount, not ModifiedCount: a document
// whose matched fields already held the update's values still counts as
// updated for row-count purposes, the same as any relational UPDATE would.
func (d *Database) UpdateMany(ctx context.Context, collection string, filter bson.M, update bson.D) (int64, error) {
	result, err := d.db.Collection(collection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, mdberr.Wrap(mdberr.E5, err)
	}
	return result.MatchedCount, nil
}

// DeleteMany removes every document in collection matching filter and
// reports how many were removed.
func (d *Database) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	result, err := d.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, mdberr.Wrap(mdberr.E5, err)
	}
	return result.DeletedCount, nil
}

// CreateIndex builds an index on collection per keys, under name if set.
func (d *Database) CreateIndex(ctx context.Context, collection, name string, keys bson.D) error {
	model := mongo.IndexModel{Keys: keys}
	if name != "" {
		model.Options = options.Index().SetName(name)
	}
	if _, err := d.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return mdberr.Wrap(mdberr.E5, err)
	}
	return nil
}

// DropIndex drops the named index on collection.
func (d *Database) DropIndex(ctx context.Context, collection, name string) error {
	if _, err := d.db.Collection(collection).Indexes().DropOne(ctx, name); err != nil {
		return mdberr.Wrap(mdberr.E5, err)
	}
	return nil
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]bson.D, error) {
	var docs []bson.D
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, mdberr.Wrap(mdberr.E5, err)
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, mdberr.Wrap(mdberr.E5, err)
	}
	return docs, nil
}
