// Package planner lowers a validated sqlfront.Stmt into a store-agnostic
// Plan expressed in terms of MongoDB primitives: filter documents,
// projection documents, aggregation stages, index specifications, and DDL
// actions. Every Plan produced here is parameter-free: placeholders are
// already substituted with bound values by the time a Plan exists.
package planner

import "go.mongodb.org/mongo-driver/bson"

// Plan is the closed set of lowered execution shapes.
type Plan interface {
	isPlan()
}

// Column is one projected output position. Wildcard selects (nil Columns on
// FindPlan/AggregatePlan) are resolved against the shape of the first
// returned document at execution time.
type Column struct {
	Alias string
}

// FindPlan is used when the Select has no join, group-by, aggregate, UNION,
// derived table, or window function — the cursor-level filter/sort/skip/limit
// primitives cover it directly.
type FindPlan struct {
	Collection string
	Filter     bson.M
	Sort       bson.D
	Skip       *int64
	Limit      *int64
	Columns    []Column // nil means wildcard projection
}

func (*FindPlan) isPlan() {}

// AggregatePlan covers every Select that FindPlan cannot: joins, grouping,
// aggregates, UNION ALL, a derived table in FROM, or a window function.
type AggregatePlan struct {
	Collection string
	Stages     []bson.D
	Columns    []Column // nil means wildcard projection
}

func (*AggregatePlan) isPlan() {}

type InsertPlan struct {
	Collection string
	Documents  []bson.D
}

func (*InsertPlan) isPlan() {}

type UpdatePlan struct {
	Collection string
	Filter     bson.M
	Set        bson.D
}

func (*UpdatePlan) isPlan() {}

type DeletePlan struct {
	Collection string
	Filter     bson.M
}

func (*DeletePlan) isPlan() {}

// DDLKind enumerates the accepted schema operations.
type DDLKind int

const (
	CreateCollection DDLKind = iota
	DropCollection
	CreateIndex
	DropIndex
)

type DDLPlan struct {
	Kind       DDLKind
	Collection string
	IndexName  string
	IndexKeys  bson.D // asc (value 1) per column, in declaration order
}

func (*DDLPlan) isPlan() {}

// NoOpPlan represents BEGIN/COMMIT/ROLLBACK: accepted, validated, and
// otherwise inert — the façade does not expose store sessions.
type NoOpPlan struct{}

func (*NoOpPlan) isPlan() {}
