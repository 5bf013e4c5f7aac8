package sqlfront

import "github.com/kitfactory/mongosql/mdberr"

// Validate walks stmt and rejects anything the bounded dialect does not
// accept. It runs after parsing and before the Plan Builder, exactly where
// the accepted-dialect boundary belongs: join shape, set-operation form,
// subquery correlation, window usage, and the DELETE/UPDATE WHERE guard.
func Validate(stmt Stmt) error {
	switch s := stmt.(type) {
	case *SelectStmt:
		return validateSelect(s, nil)
	case *UpdateStmt:
		if s.Where == nil {
			return mdberr.New(mdberr.E3, "UPDATE without WHERE is not permitted")
		}
		return validateExpr(s.Where, nil)
	case *DeleteStmt:
		if s.Where == nil {
			return mdberr.New(mdberr.E3, "DELETE without WHERE is not permitted")
		}
		return validateExpr(s.Where, nil)
	case *InsertStmt, *CreateTableStmt, *DropTableStmt, *CreateIndexStmt, *DropIndexStmt, *NoOpStmt:
		return nil
	default:
		return mdberr.New(mdberr.E1, "unsupported statement shape")
	}
}

// validateSelect checks s, given the set of relation names already in scope
// from enclosing queries (used for correlation detection in subqueries).
func validateSelect(s *SelectStmt, outerRelations map[string]bool) error {
	relations := relationNames(s)

	if s.From.Derived != nil {
		if err := validateSelect(s.From.Derived, outerRelations); err != nil {
			return err
		}
	}

	left := map[string]bool{}
	if q := s.From.Qualifier(); q != "" {
		left[q] = true
	}
	for _, j := range s.Joins {
		if j.Kind == FullJoin || j.Kind == RightJoin {
			return mdberr.New(mdberr.E2, "FULL OUTER JOIN and RIGHT JOIN are not supported")
		}
		right := map[string]bool{j.Qualifier(): true}
		if err := validateEquiJoin(j.On, left, right); err != nil {
			return err
		}
		left[j.Qualifier()] = true
	}

	windows := 0
	for _, c := range s.Columns {
		if _, ok := c.Expr.(*WindowCallExpr); ok {
			windows++
		}
	}
	if windows > 1 {
		return mdberr.New(mdberr.E2, "only one window function per query is supported")
	}

	for _, c := range s.Columns {
		if err := validateExpr(c.Expr, relations); err != nil {
			return err
		}
	}
	if s.Where != nil {
		if err := validateExpr(s.Where, relations); err != nil {
			return err
		}
	}
	for _, g := range s.GroupBy {
		if err := validateExpr(g, relations); err != nil {
			return err
		}
	}
	if s.Having != nil {
		if err := validateExpr(s.Having, relations); err != nil {
			return err
		}
	}
	for _, o := range s.OrderBy {
		if err := validateExpr(o.Expr, relations); err != nil {
			return err
		}
	}
	if s.UnionAll != nil {
		if err := validateSelect(s.UnionAll, outerRelations); err != nil {
			return err
		}
	}
	return nil
}

// relationNames collects the names (and aliases) visible as range variables
// within s's own FROM/JOIN clause — not including any enclosing query.
func relationNames(s *SelectStmt) map[string]bool {
	out := map[string]bool{}
	if s.From.Table != "" {
		out[s.From.Table] = true
	}
	if s.From.Alias != "" {
		out[s.From.Alias] = true
	}
	for _, j := range s.Joins {
		out[j.Table] = true
		if j.Alias != "" {
			out[j.Alias] = true
		}
	}
	return out
}

// validateEquiJoin requires on to reduce to a conjunction of equalities, each
// comparing one column qualified to left (every relation already joined on
// this query's left-hand side) against one column qualified to right (this
// join's own relation), in either order. A predicate equating two columns
// from the same side, or referencing a relation outside both sets, is
// rejected as not an equi-join condition between the two relations being
// joined here.
func validateEquiJoin(on Expr, left, right map[string]bool) error {
	if on == nil {
		return mdberr.New(mdberr.E2, "join without an ON clause is not supported")
	}
	switch e := on.(type) {
	case *LogicalExpr:
		if e.Op != And {
			return mdberr.New(mdberr.E2, "join predicate must be a conjunction of equalities")
		}
		for _, a := range e.Args {
			if err := validateEquiJoin(a, left, right); err != nil {
				return err
			}
		}
		return nil
	case *BinOpExpr:
		if e.Op != "=" {
			return mdberr.New(mdberr.E2, "non-equi join predicate is not supported")
		}
		lcol, lok := e.LHS.(*ColumnExpr)
		rcol, rok := e.RHS.(*ColumnExpr)
		if !lok || !rok {
			return mdberr.New(mdberr.E2, "join predicate must compare two columns")
		}
		if (left[lcol.Qualifier] && right[rcol.Qualifier]) || (right[lcol.Qualifier] && left[rcol.Qualifier]) {
			return nil
		}
		return mdberr.New(mdberr.E2, "join predicate must equate a column from each side of this join")
	default:
		return mdberr.New(mdberr.E2, "join predicate referring to more than two relations, or of unsupported shape")
	}
}

// validateExpr walks e looking for correlated subqueries and disallowed
// window usages. relations is the set of range variables visible to e's
// enclosing Select.
func validateExpr(e Expr, relations map[string]bool) error {
	switch v := e.(type) {
	case nil:
		return nil
	case *BinOpExpr:
		if err := validateExpr(v.LHS, relations); err != nil {
			return err
		}
		return validateExpr(v.RHS, relations)
	case *LogicalExpr:
		for _, a := range v.Args {
			if err := validateExpr(a, relations); err != nil {
				return err
			}
		}
		return nil
	case *InExpr:
		if v.Subquery != nil {
			if err := checkCorrelation(v.Subquery, relations); err != nil {
				return err
			}
			return validateSelect(v.Subquery, relations)
		}
		for _, it := range v.List {
			if err := validateExpr(it, relations); err != nil {
				return err
			}
		}
		return nil
	case *BetweenExpr:
		if err := validateExpr(v.Low, relations); err != nil {
			return err
		}
		return validateExpr(v.High, relations)
	case *LikeExpr:
		return validateExpr(v.Pattern, relations)
	case *IsNullExpr:
		return validateExpr(v.Target, relations)
	case *ExistsExpr:
		if err := checkCorrelation(v.Subquery, relations); err != nil {
			return err
		}
		return validateSelect(v.Subquery, relations)
	case *FuncCallExpr:
		for _, a := range v.Args {
			if err := validateExpr(a, relations); err != nil {
				return err
			}
		}
		return nil
	case *WindowCallExpr:
		if len(v.Partition) != 0 {
			return mdberr.New(mdberr.E2, "window functions with PARTITION BY are not supported")
		}
		switch v.Func {
		case "ROW_NUMBER", "RANK":
		default:
			return mdberr.New(mdberr.E2, "unsupported window function %q", v.Func)
		}
		if len(v.Order) == 0 {
			return mdberr.New(mdberr.E2, "window function requires ORDER BY")
		}
		return nil
	default:
		return nil
	}
}

// checkCorrelation rejects a subquery that references a range variable from
// an enclosing query anywhere in its own WHERE/columns — this is what makes
// the Plan Builder's eager EXISTS/IN(subquery) evaluation sound: an
// uncorrelated subquery's result does not depend on the outer row.
func checkCorrelation(sub *SelectStmt, outerRelations map[string]bool) error {
	if len(outerRelations) == 0 {
		return nil
	}
	own := relationNames(sub)
	var walk func(Expr) error
	walk = func(e Expr) error {
		switch v := e.(type) {
		case nil:
			return nil
		case *ColumnExpr:
			if v.Qualifier != "" && !own[v.Qualifier] && outerRelations[v.Qualifier] {
				return mdberr.New(mdberr.E2, "correlated subquery is not supported")
			}
			return nil
		case *BinOpExpr:
			if err := walk(v.LHS); err != nil {
				return err
			}
			return walk(v.RHS)
		case *LogicalExpr:
			for _, a := range v.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
			return nil
		case *InExpr:
			if err := walk(v.Target); err != nil {
				return err
			}
			for _, it := range v.List {
				if err := walk(it); err != nil {
					return err
				}
			}
			return nil
		case *BetweenExpr:
			if err := walk(v.Low); err != nil {
				return err
			}
			return walk(v.High)
		case *LikeExpr:
			return walk(v.Pattern)
		case *IsNullExpr:
			return walk(v.Target)
		case *FuncCallExpr:
			for _, a := range v.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
			return nil
		default:
			return nil
		}
	}
	if sub.Where != nil {
		if err := walk(sub.Where); err != nil {
			return err
		}
	}
	for _, c := range sub.Columns {
		if err := walk(c.Expr); err != nil {
			return err
		}
	}
	return nil
}
