package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kitfactory/mongosql/binder"
	"github.com/kitfactory/mongosql/mdberr"
	"github.com/kitfactory/mongosql/sqlfront"
)

// StoreReader is the minimal read access the Plan Builder needs to evaluate
// EXISTS and IN(subquery) eagerly. store.Database satisfies it.
type StoreReader interface {
	Find(ctx context.Context, collection string, filter bson.M, sort bson.D, skip, limit *int64) ([]bson.D, error)
	Aggregate(ctx context.Context, collection string, stages []bson.D) ([]bson.D, error)
}

// Build lowers stmt (already parsed and validated) into a Plan. bound
// supplies the values standing in for the placeholder sentinels Parse left
// in the AST; reader is used only to evaluate subqueries eagerly.
func Build(ctx context.Context, stmt sqlfront.Stmt, bound *binder.Bound, reader StoreReader) (Plan, error) {
	values := valuesBySentinel(bound)
	b := &builder{ctx: ctx, values: values, reader: reader}

	switch s := stmt.(type) {
	case *sqlfront.SelectStmt:
		return b.buildSelect(s)
	case *sqlfront.InsertStmt:
		return b.buildInsert(s)
	case *sqlfront.UpdateStmt:
		return b.buildUpdate(s)
	case *sqlfront.DeleteStmt:
		return b.buildDelete(s)
	case *sqlfront.CreateTableStmt:
		return &DDLPlan{Kind: CreateCollection, Collection: s.Table}, nil
	case *sqlfront.DropTableStmt:
		return &DDLPlan{Kind: DropCollection, Collection: s.Table}, nil
	case *sqlfront.CreateIndexStmt:
		keys := make(bson.D, 0, len(s.Columns))
		for _, c := range s.Columns {
			keys = append(keys, bson.E{Key: c, Value: 1})
		}
		return &DDLPlan{Kind: CreateIndex, Collection: s.Table, IndexName: s.Name, IndexKeys: keys}, nil
	case *sqlfront.DropIndexStmt:
		return &DDLPlan{Kind: DropIndex, Collection: s.Table, IndexName: s.Name}, nil
	case *sqlfront.NoOpStmt:
		return &NoOpPlan{}, nil
	default:
		return nil, mdberr.New(mdberr.E1, "unsupported statement shape")
	}
}

func valuesBySentinel(bound *binder.Bound) map[string]any {
	out := map[string]any{}
	if bound == nil {
		return out
	}
	for i, m := range bound.Markers {
		out[m.Sentinel] = bound.Values[i]
	}
	return out
}

type builder struct {
	ctx    context.Context
	values map[string]any
	reader StoreReader
	stmt   *sqlfront.SelectStmt // the Select currently being lowered, for path resolution
}

// --- SELECT ---

func (b *builder) buildSelect(s *sqlfront.SelectStmt) (Plan, error) {
	simple := len(s.Joins) == 0 && len(s.GroupBy) == 0 && s.UnionAll == nil &&
		s.From.Derived == nil && !hasAggregate(s.Columns) && !s.UsesWindow

	if simple {
		return b.buildFind(s)
	}
	return b.buildAggregate(s)
}

func hasAggregate(cols []sqlfront.SelectColumn) bool {
	for _, c := range cols {
		if c.IsAggregate {
			return true
		}
	}
	return false
}

func (b *builder) buildFind(s *sqlfront.SelectStmt) (*FindPlan, error) {
	b.stmt = s
	filter := bson.M{}
	if s.Where != nil {
		f, err := b.lowerFilter(s.Where, nil)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	sort := bson.D{}
	for _, o := range s.OrderBy {
		col, ok := o.Expr.(*sqlfront.ColumnExpr)
		if !ok {
			return nil, mdberr.New(mdberr.E2, "ORDER BY expects a column reference")
		}
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: col.Name, Value: dir})
	}

	plan := &FindPlan{Collection: s.From.Table, Filter: filter, Sort: sort}
	if s.Limit != nil {
		l := int64(*s.Limit)
		plan.Limit = &l
	}
	if s.Offset != nil {
		o := int64(*s.Offset)
		plan.Skip = &o
	}
	if s.Columns != nil {
		cols, err := b.selectColumns(s, nil)
		if err != nil {
			return nil, err
		}
		plan.Columns = cols
	}
	return plan, nil
}

// buildAggregate handles every Select that needs a pipeline: joins,
// grouping, aggregates, UNION ALL, derived tables, and degenerate window
// functions (validated to be the sole accepted shape by this point).
func (b *builder) buildAggregate(s *sqlfront.SelectStmt) (*AggregatePlan, error) {
	b.stmt = s
	var stages []bson.D
	collection := s.From.Table

	if s.From.Derived != nil {
		innerPlan, err := b.buildSelect(s.From.Derived)
		if err != nil {
			return nil, err
		}
		b.stmt = s // buildSelect(derived) reassigned b.stmt; restore before continuing with the outer query
		switch p := innerPlan.(type) {
		case *FindPlan:
			collection = p.Collection
			stages = findPlanToStages(p)
		case *AggregatePlan:
			collection = p.Collection
			stages = p.Stages
		}
	}

	relations := map[string]bool{s.From.Qualifier(): true}
	for _, j := range s.Joins {
		relations[j.Qualifier()] = true
		lookupAs := j.Qualifier()
		localField, foreignField, err := equiJoinFields(j.On, s.From.Qualifier(), lookupAs)
		if err != nil {
			return nil, err
		}
		stages = append(stages, bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: j.Table},
			{Key: "localField", Value: localField},
			{Key: "foreignField", Value: foreignField},
			{Key: "as", Value: lookupAs},
		}}})
		preserve := j.Kind == sqlfront.LeftJoin
		stages = append(stages, bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + lookupAs},
			{Key: "preserveNullAndEmptyArrays", Value: preserve},
		}}})
	}

	if s.Where != nil {
		f, err := b.lowerFilter(s.Where, relations)
		if err != nil {
			return nil, err
		}
		stages = append(stages, bson.D{{Key: "$match", Value: f}})
	}

	if len(s.GroupBy) > 0 {
		groupStage, aliasPaths, err := b.buildGroupStage(s, relations)
		if err != nil {
			return nil, err
		}
		stages = append(stages, groupStage)
		if s.Having != nil {
			hf, err := b.lowerFilter(s.Having, relations)
			if err != nil {
				return nil, err
			}
			stages = append(stages, bson.D{{Key: "$match", Value: hf}})
		}
		// Re-surface each grouping key under its select alias: $group only
		// leaves it reachable through _id (or _id.<key> for a composite key).
		proj := bson.D{{Key: "_id", Value: 0}}
		for _, c := range s.Columns {
			alias := columnAlias(c)
			if c.IsAggregate {
				proj = append(proj, bson.E{Key: alias, Value: 1})
				continue
			}
			name, err := exprName(c.Expr)
			if err != nil {
				return nil, err
			}
			if p, ok := aliasPaths[name]; ok {
				proj = append(proj, bson.E{Key: alias, Value: "$" + p})
			} else {
				proj = append(proj, bson.E{Key: alias, Value: 1})
			}
		}
		stages = append(stages, bson.D{{Key: "$project", Value: proj}})

		for _, o := range s.OrderBy {
			name, err := exprName(o.Expr)
			if err != nil {
				return nil, err
			}
			dir := 1
			if o.Desc {
				dir = -1
			}
			stages = append(stages, bson.D{{Key: "$sort", Value: bson.D{{Key: name, Value: dir}}}})
		}
	} else {
		if len(s.OrderBy) > 0 {
			sort := bson.D{}
			for _, o := range s.OrderBy {
				name, err := exprName(o.Expr)
				if err != nil {
					return nil, err
				}
				path, err := resolveColumnPath(name, relations, s)
				if err != nil {
					path = name
				}
				dir := 1
				if o.Desc {
					dir = -1
				}
				sort = append(sort, bson.E{Key: path, Value: dir})
			}
			stages = append(stages, bson.D{{Key: "$sort", Value: sort}})
		}
	}

	if s.Offset != nil {
		stages = append(stages, bson.D{{Key: "$skip", Value: int64(*s.Offset)}})
	}
	if s.Limit != nil {
		stages = append(stages, bson.D{{Key: "$limit", Value: int64(*s.Limit)}})
	}

	if s.UsesWindow {
		ws, err := buildWindowStage(s.Columns)
		if err != nil {
			return nil, err
		}
		stages = append(stages, ws)
	}

	var columns []Column
	if len(s.GroupBy) == 0 && s.Columns != nil {
		cols, err := b.selectColumns(s, relations)
		if err != nil {
			return nil, err
		}
		columns = cols
		stages = append(stages, projectStage(cols, relations, s))
	} else if len(s.GroupBy) > 0 {
		for _, c := range s.Columns {
			columns = append(columns, Column{Alias: columnAlias(c)})
		}
	}

	if s.UnionAll != nil {
		subPlan, err := b.buildSelect(s.UnionAll)
		if err != nil {
			return nil, err
		}
		var subStages []bson.D
		var subColl string
		switch sp := subPlan.(type) {
		case *FindPlan:
			subColl = sp.Collection
			subStages = findPlanToStages(sp)
		case *AggregatePlan:
			subColl = sp.Collection
			subStages = sp.Stages
		}
		stages = append(stages, bson.D{{Key: "$unionWith", Value: bson.D{
			{Key: "coll", Value: subColl},
			{Key: "pipeline", Value: subStages},
		}}})
	}

	return &AggregatePlan{Collection: collection, Stages: stages, Columns: columns}, nil
}

func findPlanToStages(fp *FindPlan) []bson.D {
	var stages []bson.D
	if len(fp.Filter) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: fp.Filter}})
	}
	if len(fp.Sort) > 0 {
		stages = append(stages, bson.D{{Key: "$sort", Value: fp.Sort}})
	}
	if fp.Skip != nil {
		stages = append(stages, bson.D{{Key: "$skip", Value: *fp.Skip}})
	}
	if fp.Limit != nil {
		stages = append(stages, bson.D{{Key: "$limit", Value: *fp.Limit}})
	}
	return stages
}

func (b *builder) buildGroupStage(s *sqlfront.SelectStmt, relations map[string]bool) (bson.D, map[string]string, error) {
	aliasPaths := map[string]string{}

	if len(s.GroupBy) == 1 {
		name, err := exprName(s.GroupBy[0])
		if err != nil {
			return nil, nil, err
		}
		path, _ := resolveColumnPath(name, relations, s)
		groupID := "$" + path
		aliasPaths[name] = "_id"
		group := bson.D{{Key: "_id", Value: groupID}}
		for _, c := range s.Columns {
			if c.IsAggregate {
				alias := columnAlias(c)
				acc, err := b.aggregateAccumulator(c.Expr, relations, s)
				if err != nil {
					return nil, nil, err
				}
				group = append(group, bson.E{Key: alias, Value: acc})
			}
		}
		return bson.D{{Key: "$group", Value: group}}, aliasPaths, nil
	}

	keyDoc := bson.D{}
	for _, g := range s.GroupBy {
		name, err := exprName(g)
		if err != nil {
			return nil, nil, err
		}
		path, _ := resolveColumnPath(name, relations, s)
		keyDoc = append(keyDoc, bson.E{Key: name, Value: "$" + path})
		aliasPaths[name] = "_id." + name
	}
	group := bson.D{{Key: "_id", Value: keyDoc}}
	for _, c := range s.Columns {
		if c.IsAggregate {
			alias := columnAlias(c)
			acc, err := b.aggregateAccumulator(c.Expr, relations, s)
			if err != nil {
				return nil, nil, err
			}
			group = append(group, bson.E{Key: alias, Value: acc})
		}
	}
	return bson.D{{Key: "$group", Value: group}}, aliasPaths, nil
}

func (b *builder) aggregateAccumulator(e sqlfront.Expr, relations map[string]bool, s *sqlfront.SelectStmt) (bson.D, error) {
	fc, ok := e.(*sqlfront.FuncCallExpr)
	if !ok {
		return nil, mdberr.New(mdberr.E2, "unsupported aggregate expression")
	}
	if fc.Name == "COUNT" && fc.Star {
		return bson.D{{Key: "$sum", Value: 1}}, nil
	}
	if len(fc.Args) != 1 {
		return nil, mdberr.New(mdberr.E2, "aggregate function %s requires exactly one argument", fc.Name)
	}
	name, err := exprName(fc.Args[0])
	if err != nil {
		return nil, err
	}
	path, _ := resolveColumnPath(name, relations, s)
	field := "$" + path
	switch fc.Name {
	case "COUNT":
		return bson.D{{Key: "$sum", Value: 1}}, nil
	case "SUM":
		return bson.D{{Key: "$sum", Value: field}}, nil
	case "AVG":
		return bson.D{{Key: "$avg", Value: field}}, nil
	case "MIN":
		return bson.D{{Key: "$min", Value: field}}, nil
	case "MAX":
		return bson.D{{Key: "$max", Value: field}}, nil
	default:
		return nil, mdberr.New(mdberr.E2, "unsupported aggregate function %q", fc.Name)
	}
}

func buildWindowStage(cols []sqlfront.SelectColumn) (bson.D, error) {
	for _, c := range cols {
		w, ok := c.Expr.(*sqlfront.WindowCallExpr)
		if !ok {
			continue
		}
		alias := c.Alias
		if alias == "" {
			alias = strings.ToLower(w.Func)
		}
		sortBy := bson.D{}
		for _, o := range w.Order {
			name, err := exprName(o.Expr)
			if err != nil {
				return nil, err
			}
			dir := 1
			if o.Desc {
				dir = -1
			}
			sortBy = append(sortBy, bson.E{Key: name, Value: dir})
		}
		var output bson.D
		switch w.Func {
		case "ROW_NUMBER":
			output = bson.D{{Key: alias, Value: bson.D{{Key: "$documentNumber", Value: bson.D{}}}}}
		case "RANK":
			output = bson.D{{Key: alias, Value: bson.D{{Key: "$rank", Value: bson.D{}}}}}
		default:
			return nil, mdberr.New(mdberr.E2, "unsupported window function %q", w.Func)
		}
		return bson.D{{Key: "$setWindowFields", Value: bson.D{
			{Key: "sortBy", Value: sortBy},
			{Key: "output", Value: output},
		}}}, nil
	}
	return nil, mdberr.New(mdberr.E2, "window usage flagged but no window call found")
}

func (b *builder) selectColumns(s *sqlfront.SelectStmt, relations map[string]bool) ([]Column, error) {
	var out []Column
	for _, c := range s.Columns {
		out = append(out, Column{Alias: columnAlias(c)})
	}
	return out, nil
}

func columnAlias(c sqlfront.SelectColumn) string {
	if c.Alias != "" {
		return c.Alias
	}
	if col, ok := c.Expr.(*sqlfront.ColumnExpr); ok {
		return col.Name
	}
	if fc, ok := c.Expr.(*sqlfront.FuncCallExpr); ok {
		return strings.ToLower(fc.Name)
	}
	return ""
}

// projectStage builds the final $project renaming each selected expression
// to its alias, in declaration order, resolving table qualifiers against
// base-table vs. join-introduced paths.
func projectStage(cols []Column, relations map[string]bool, s *sqlfront.SelectStmt) bson.D {
	proj := bson.D{{Key: "_id", Value: 0}}
	for i, c := range s.Columns {
		alias := cols[i].Alias
		if col, ok := c.Expr.(*sqlfront.ColumnExpr); ok {
			path, _ := resolveColumnPath(refName(col), relations, s)
			proj = append(proj, bson.E{Key: alias, Value: "$" + path})
			continue
		}
		proj = append(proj, bson.E{Key: alias, Value: 1})
	}
	return bson.D{{Key: "$project", Value: proj}}
}

func refName(col *sqlfront.ColumnExpr) string {
	if col.Qualifier != "" {
		return col.Qualifier + "." + col.Name
	}
	return col.Name
}

// resolveColumnPath turns "qualifier.name" or "name" into the dotted BSON
// path to read after the join/lookup chain has run: base-table columns live
// at the top level; joined-relation columns live under their lookup alias.
func resolveColumnPath(name string, relations map[string]bool, s *sqlfront.SelectStmt) (string, error) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 1 {
		return parts[0], nil
	}
	qualifier, field := parts[0], parts[1]
	if qualifier == s.From.Qualifier() || qualifier == s.From.Table {
		return field, nil
	}
	for _, j := range s.Joins {
		if qualifier == j.Qualifier() || qualifier == j.Table {
			return j.Qualifier() + "." + field, nil
		}
	}
	return field, nil
}

func exprName(e sqlfront.Expr) (string, error) {
	col, ok := e.(*sqlfront.ColumnExpr)
	if !ok {
		return "", mdberr.New(mdberr.E2, "expected a column reference")
	}
	return refName(col), nil
}

// equiJoinFields extracts the (localField, foreignField) pair from a
// validated equi-join predicate (a single equality or a conjunction of
// them — only the first is used since multi-key $lookup is not modeled).
func equiJoinFields(on sqlfront.Expr, baseQualifier, rightQualifier string) (string, string, error) {
	var bin *sqlfront.BinOpExpr
	switch e := on.(type) {
	case *sqlfront.BinOpExpr:
		bin = e
	case *sqlfront.LogicalExpr:
		if len(e.Args) == 0 {
			return "", "", mdberr.New(mdberr.E2, "empty join predicate")
		}
		b, ok := e.Args[0].(*sqlfront.BinOpExpr)
		if !ok {
			return "", "", mdberr.New(mdberr.E2, "unsupported join predicate")
		}
		bin = b
	default:
		return "", "", mdberr.New(mdberr.E2, "unsupported join predicate")
	}
	lcol, lok := bin.LHS.(*sqlfront.ColumnExpr)
	rcol, rok := bin.RHS.(*sqlfront.ColumnExpr)
	if !lok || !rok {
		return "", "", mdberr.New(mdberr.E2, "join predicate must compare two columns")
	}
	if lcol.Qualifier == rightQualifier {
		lcol, rcol = rcol, lcol
	}
	// A column of an earlier join lives under that join's lookup alias.
	localField := lcol.Name
	if lcol.Qualifier != "" && lcol.Qualifier != baseQualifier {
		localField = lcol.Qualifier + "." + lcol.Name
	}
	return localField, rcol.Name, nil
}

// --- filter lowering ---

func (b *builder) lowerFilter(e sqlfront.Expr, relations map[string]bool) (bson.M, error) {
	switch v := e.(type) {
	case *sqlfront.LogicalExpr:
		items := make(bson.A, 0, len(v.Args))
		for _, a := range v.Args {
			f, err := b.lowerFilter(a, relations)
			if err != nil {
				return nil, err
			}
			items = append(items, f)
		}
		switch v.Op {
		case sqlfront.And:
			return bson.M{"$and": items}, nil
		case sqlfront.Or:
			return bson.M{"$or": items}, nil
		case sqlfront.Not:
			if len(items) != 1 {
				return nil, mdberr.New(mdberr.E2, "NOT takes exactly one argument")
			}
			return bson.M{"$nor": bson.A{items[0]}}, nil
		}
	case *sqlfront.BinOpExpr:
		return b.lowerComparison(v, relations)
	case *sqlfront.InExpr:
		return b.lowerIn(v, relations)
	case *sqlfront.BetweenExpr:
		field, err := b.fieldPath(v.Target, relations)
		if err != nil {
			return nil, err
		}
		lo, err := b.value(v.Low)
		if err != nil {
			return nil, err
		}
		hi, err := b.value(v.High)
		if err != nil {
			return nil, err
		}
		m := bson.M{field: bson.M{"$gte": lo, "$lte": hi}}
		if v.Not {
			return bson.M{"$nor": bson.A{m}}, nil
		}
		return m, nil
	case *sqlfront.LikeExpr:
		return b.lowerLike(v, relations)
	case *sqlfront.IsNullExpr:
		field, err := b.fieldPath(v.Target, relations)
		if err != nil {
			return nil, err
		}
		if v.Not {
			return bson.M{field: bson.M{"$ne": nil}}, nil
		}
		return bson.M{field: nil}, nil
	case *sqlfront.ExistsExpr:
		return b.lowerExists(v)
	default:
		return nil, mdberr.New(mdberr.E2, "unsupported filter expression")
	}
	return nil, mdberr.New(mdberr.E2, "unsupported filter expression")
}

func (b *builder) lowerComparison(v *sqlfront.BinOpExpr, relations map[string]bool) (bson.M, error) {
	field, err := b.fieldPath(v.LHS, relations)
	if err != nil {
		return nil, err
	}
	val, err := b.value(v.RHS)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "=":
		return bson.M{field: val}, nil
	case "<>":
		return bson.M{field: bson.M{"$ne": val}}, nil
	case "<":
		return bson.M{field: bson.M{"$lt": val}}, nil
	case "<=":
		return bson.M{field: bson.M{"$lte": val}}, nil
	case ">":
		return bson.M{field: bson.M{"$gt": val}}, nil
	case ">=":
		return bson.M{field: bson.M{"$gte": val}}, nil
	default:
		return nil, mdberr.New(mdberr.E2, "unsupported comparison operator %q", v.Op)
	}
}

func (b *builder) lowerIn(v *sqlfront.InExpr, relations map[string]bool) (bson.M, error) {
	field, err := b.fieldPath(v.Target, relations)
	if err != nil {
		return nil, err
	}
	var list bson.A
	if v.Subquery != nil {
		rows, err := b.runSubquery(v.Subquery)
		if err != nil {
			return nil, err
		}
		list = scalarColumn(rows)
	} else {
		for _, item := range v.List {
			val, err := b.value(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
	}
	if v.Not {
		return bson.M{field: bson.M{"$nin": list}}, nil
	}
	return bson.M{field: bson.M{"$in": list}}, nil
}

// scalarColumn extracts the single projected value from each row of an
// eagerly-evaluated subquery result, in row order.
func scalarColumn(rows []bson.D) bson.A {
	out := make(bson.A, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			out = append(out, row[0].Value)
		}
	}
	return out
}

// lowerExists evaluates subquery eagerly and returns a tautology (match
// everything) if it produced any row, or a contradiction (match nothing)
// otherwise. Sound only because correlated subqueries are rejected upstream
// by sqlfront.Validate.
func (b *builder) lowerExists(v *sqlfront.ExistsExpr) (bson.M, error) {
	rows, err := b.runSubquery(v.Subquery)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return bson.M{}, nil // tautology: empty filter matches every document
	}
	return bson.M{"_id": bson.M{"$exists": false, "$ne": nil}}, nil // contradiction
}

func (b *builder) runSubquery(sub *sqlfront.SelectStmt) ([]bson.D, error) {
	if b.reader == nil {
		return nil, mdberr.New(mdberr.E5, "subquery evaluation requires a store connection")
	}
	outer := b.stmt
	defer func() { b.stmt = outer }()
	plan, err := b.buildSelect(sub)
	if err != nil {
		return nil, err
	}
	switch p := plan.(type) {
	case *FindPlan:
		return b.reader.Find(b.ctx, p.Collection, p.Filter, p.Sort, p.Skip, p.Limit)
	case *AggregatePlan:
		return b.reader.Aggregate(b.ctx, p.Collection, p.Stages)
	default:
		return nil, mdberr.New(mdberr.E2, "unsupported subquery shape")
	}
}

var likeMetachars = regexp.MustCompile(`[.^$|()\[\]{}*+?\\]`)

func (b *builder) lowerLike(v *sqlfront.LikeExpr, relations map[string]bool) (bson.M, error) {
	field, err := b.fieldPath(v.Target, relations)
	if err != nil {
		return nil, err
	}
	patVal, err := b.value(v.Pattern)
	if err != nil {
		return nil, err
	}
	pattern, ok := patVal.(string)
	if !ok {
		return nil, mdberr.New(mdberr.E2, "LIKE pattern must be a string literal")
	}
	regex := likeToRegex(pattern)
	opts := ""
	if v.ILike {
		opts = "i"
	}
	m := bson.M{field: bson.M{"$regex": regex, "$options": opts}}
	if v.Not {
		return bson.M{field: bson.M{"$not": bson.M{"$regex": regex, "$options": opts}}}, nil
	}
	return m, nil
}

func likeToRegex(pattern string) string {
	var out strings.Builder
	out.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			out.WriteString(".*")
		case '_':
			out.WriteString(".")
		default:
			if likeMetachars.MatchString(string(r)) {
				out.WriteString(regexp.QuoteMeta(string(r)))
			} else {
				out.WriteRune(r)
			}
		}
	}
	out.WriteString("$")
	return out.String()
}

func (b *builder) fieldPath(e sqlfront.Expr, relations map[string]bool) (string, error) {
	col, ok := e.(*sqlfront.ColumnExpr)
	if !ok {
		return "", mdberr.New(mdberr.E2, "expected a column reference on the left side of a predicate")
	}
	if relations == nil || b.stmt == nil {
		return col.Name, nil
	}
	return resolveColumnPath(refName(col), relations, b.stmt)
}

// value resolves a literal or a bound placeholder to its runtime Go value.
func (b *builder) value(e sqlfront.Expr) (any, error) {
	switch v := e.(type) {
	case *sqlfront.LiteralExpr:
		switch v.Kind {
		case sqlfront.LitNull:
			return nil, nil
		default:
			return v.Val, nil
		}
	case *sqlfront.PlaceholderExpr:
		val, ok := b.values[v.Sentinel]
		if !ok {
			return nil, mdberr.New(mdberr.E4, "unbound placeholder %q", v.Sentinel)
		}
		return val, nil
	default:
		return nil, mdberr.New(mdberr.E2, fmt.Sprintf("unsupported literal expression %T", e))
	}
}

// --- INSERT/UPDATE/DELETE ---

func (b *builder) buildInsert(s *sqlfront.InsertStmt) (*InsertPlan, error) {
	docs := make([]bson.D, 0, len(s.Rows))
	for _, row := range s.Rows {
		doc := make(bson.D, 0, len(s.Columns))
		for i, col := range s.Columns {
			val, err := b.value(row[i])
			if err != nil {
				return nil, err
			}
			doc = append(doc, bson.E{Key: col, Value: val})
		}
		docs = append(docs, doc)
	}
	return &InsertPlan{Collection: s.Table, Documents: docs}, nil
}

func (b *builder) buildUpdate(s *sqlfront.UpdateStmt) (*UpdatePlan, error) {
	if s.Where == nil {
		return nil, mdberr.New(mdberr.E3, "UPDATE without WHERE is not permitted")
	}
	filter, err := b.lowerFilter(s.Where, nil)
	if err != nil {
		return nil, err
	}
	set := make(bson.D, 0, len(s.Set))
	for _, a := range s.Set {
		val, err := b.value(a.Value)
		if err != nil {
			return nil, err
		}
		set = append(set, bson.E{Key: a.Column, Value: val})
	}
	return &UpdatePlan{Collection: s.Table, Filter: filter, Set: bson.D{{Key: "$set", Value: set}}}, nil
}

func (b *builder) buildDelete(s *sqlfront.DeleteStmt) (*DeletePlan, error) {
	if s.Where == nil {
		return nil, mdberr.New(mdberr.E3, "DELETE without WHERE is not permitted")
	}
	filter, err := b.lowerFilter(s.Where, nil)
	if err != nil {
		return nil, err
	}
	return &DeletePlan{Collection: s.Table, Filter: filter}, nil
}
