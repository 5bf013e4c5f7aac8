package sqlfront

import (
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/kitfactory/mongosql/mdberr"
)

// sentinelPrefix and sentinelSuffix recognize the binder's placeholder sentinel literal, embedded
// as '\x00oqlph<N>\x00' by binder.Bind.
const sentinelPrefix = "\x00oqlph"
const sentinelSuffix = "\x00"

// Parse tokenizes and parses rewritten SQL (placeholders already replaced by
// the binder with sentinel string literals) into one Stmt, rejecting
// anything outside the bounded dialect with a precise error code.
func Parse(sql string) (Stmt, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, mdberr.New(mdberr.E1, "cannot parse statement: %v", err)
	}
	if len(tree.Stmts) == 0 {
		return nil, mdberr.New(mdberr.E1, "empty statement")
	}
	if len(tree.Stmts) > 1 {
		return nil, mdberr.New(mdberr.E1, "multiple statements in one call are not supported")
	}

	raw := tree.Stmts[0].Stmt
	switch {
	case raw.GetSelectStmt() != nil:
		return convertTopSelect(raw.GetSelectStmt())
	case raw.GetInsertStmt() != nil:
		return convertInsert(raw.GetInsertStmt())
	case raw.GetUpdateStmt() != nil:
		return convertUpdate(raw.GetUpdateStmt())
	case raw.GetDeleteStmt() != nil:
		return convertDelete(raw.GetDeleteStmt())
	case raw.GetCreateStmt() != nil:
		return convertCreateTable(raw.GetCreateStmt())
	case raw.GetDropStmt() != nil:
		return convertDrop(raw.GetDropStmt())
	case raw.GetIndexStmt() != nil:
		return convertCreateIndex(raw.GetIndexStmt())
	case raw.GetTransactionStmt() != nil:
		return convertTransaction(raw.GetTransactionStmt())
	default:
		return nil, mdberr.New(mdberr.E1, "unsupported statement shape")
	}
}

func convertTopSelect(sel *pg_query.SelectStmt) (*SelectStmt, error) {
	if sel.Op == pg_query.SetOperation_SETOP_UNION {
		left, err := convertTopSelect(sel.Larg)
		if err != nil {
			return nil, err
		}
		right, err := convertTopSelect(sel.Rarg)
		if err != nil {
			return nil, err
		}
		if !sel.All {
			return nil, mdberr.New(mdberr.E2, "UNION without ALL is not supported")
		}
		left.UnionAll = right
		return left, nil
	}
	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		return nil, mdberr.New(mdberr.E2, "INTERSECT/EXCEPT are not supported")
	}
	return convertSelect(sel)
}

func convertSelect(sel *pg_query.SelectStmt) (*SelectStmt, error) {
	if len(sel.FromClause) == 0 {
		return nil, mdberr.New(mdberr.E1, "SELECT without FROM is not supported")
	}
	if len(sel.FromClause) > 1 {
		return nil, mdberr.New(mdberr.E2, "comma-separated FROM (implicit cross join) is not supported")
	}

	from, joins, err := extractFrom(sel.FromClause[0])
	if err != nil {
		return nil, err
	}

	out := &SelectStmt{From: from, Joins: joins, Distinct: len(sel.DistinctClause) > 0}

	if len(sel.TargetList) > 0 && !isStarOnly(sel.TargetList) {
		cols, err := extractColumns(sel.TargetList)
		if err != nil {
			return nil, err
		}
		out.Columns = cols
	}

	if sel.WhereClause != nil {
		w, err := exprFromNode(sel.WhereClause)
		if err != nil {
			return nil, err
		}
		out.Where = w
	}

	for _, g := range sel.GroupClause {
		e, err := exprFromNode(g)
		if err != nil {
			return nil, err
		}
		out.GroupBy = append(out.GroupBy, e)
	}

	if sel.HavingClause != nil {
		h, err := exprFromNode(sel.HavingClause)
		if err != nil {
			return nil, err
		}
		out.Having = h
	}

	for _, s := range sel.SortClause {
		sb := s.GetSortBy()
		if sb == nil {
			continue
		}
		e, err := exprFromNode(sb.Node)
		if err != nil {
			return nil, err
		}
		out.OrderBy = append(out.OrderBy, OrderBy{Expr: e, Desc: sb.SortbyDir == pg_query.SortByDir_SORTBY_DESC})
	}

	if sel.LimitCount != nil {
		n, err := constInt(sel.LimitCount)
		if err != nil {
			return nil, err
		}
		out.Limit = &n
	}
	if sel.LimitOffset != nil {
		n, err := constInt(sel.LimitOffset)
		if err != nil {
			return nil, err
		}
		out.Offset = &n
	}

	if usesWindow(sel.TargetList) {
		out.UsesWindow = true
	}

	return out, nil
}

func isStarOnly(targets []*pg_query.Node) bool {
	if len(targets) != 1 {
		return false
	}
	rt := targets[0].GetResTarget()
	if rt == nil {
		return false
	}
	ref := rt.Val.GetColumnRef()
	if ref == nil || len(ref.Fields) != 1 {
		return false
	}
	return ref.Fields[0].GetAStar() != nil
}

func extractColumns(targets []*pg_query.Node) ([]SelectColumn, error) {
	var out []SelectColumn
	for _, t := range targets {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		e, err := exprFromNode(rt.Val)
		if err != nil {
			return nil, err
		}
		_, isAgg := isAggregateCall(rt.Val)
		out = append(out, SelectColumn{Expr: e, Alias: rt.Name, IsAggregate: isAgg})
	}
	return out, nil
}

func isAggregateCall(node *pg_query.Node) (string, bool) {
	fc := node.GetFuncCall()
	if fc == nil || len(fc.Funcname) == 0 || fc.Over != nil {
		return "", false
	}
	name := strings.ToUpper(lastString(fc.Funcname))
	switch name {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return name, true
	}
	return "", false
}

func usesWindow(targets []*pg_query.Node) bool {
	for _, t := range targets {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		if fc := rt.Val.GetFuncCall(); fc != nil && fc.Over != nil {
			return true
		}
	}
	return false
}

func extractFrom(node *pg_query.Node) (FromClause, []Join, error) {
	if rv := node.GetRangeVar(); rv != nil {
		return FromClause{Table: rv.Relname, Alias: rangeVarAlias(rv)}, nil, nil
	}
	if rs := node.GetRangeSubselect(); rs != nil {
		inner, err := convertTopSelect(rs.Subquery.GetSelectStmt())
		if err != nil {
			return FromClause{}, nil, err
		}
		alias := ""
		if rs.Alias != nil {
			alias = rs.Alias.Aliasname
		}
		return FromClause{Derived: inner, Alias: alias}, nil, nil
	}
	if je := node.GetJoinExpr(); je != nil {
		return extractJoinChain(je)
	}
	return FromClause{}, nil, mdberr.New(mdberr.E1, "unsupported FROM clause")
}

func extractJoinChain(je *pg_query.JoinExpr) (FromClause, []Join, error) {
	var from FromClause
	var joins []Join
	var err error

	switch {
	case je.Larg.GetRangeVar() != nil:
		rv := je.Larg.GetRangeVar()
		from = FromClause{Table: rv.Relname, Alias: rangeVarAlias(rv)}
	case je.Larg.GetJoinExpr() != nil:
		from, joins, err = extractJoinChain(je.Larg.GetJoinExpr())
		if err != nil {
			return FromClause{}, nil, err
		}
	default:
		return FromClause{}, nil, mdberr.New(mdberr.E2, "join left side must be a base table")
	}

	rv := je.Rarg.GetRangeVar()
	if rv == nil {
		return FromClause{}, nil, mdberr.New(mdberr.E2, "join right side must be a base table")
	}

	kind := InnerJoin
	switch je.Jointype {
	case pg_query.JoinType_JOIN_INNER:
		kind = InnerJoin
	case pg_query.JoinType_JOIN_LEFT:
		kind = LeftJoin
	case pg_query.JoinType_JOIN_RIGHT:
		kind = RightJoin
	case pg_query.JoinType_JOIN_FULL:
		kind = FullJoin
	}

	var on Expr
	if je.Quals != nil {
		on, err = exprFromNode(je.Quals)
		if err != nil {
			return FromClause{}, nil, err
		}
	}

	joins = append(joins, Join{Kind: kind, Table: rv.Relname, Alias: rangeVarAlias(rv), On: on})
	return from, joins, nil
}

func rangeVarAlias(rv *pg_query.RangeVar) string {
	if rv.Alias != nil {
		return rv.Alias.Aliasname
	}
	return ""
}

func convertInsert(stmt *pg_query.InsertStmt) (*InsertStmt, error) {
	if stmt.Relation == nil {
		return nil, mdberr.New(mdberr.E1, "INSERT without target table")
	}
	var columns []string
	for _, c := range stmt.Cols {
		if rt := c.GetResTarget(); rt != nil {
			columns = append(columns, rt.Name)
		}
	}

	sel := stmt.SelectStmt.GetSelectStmt()
	if sel == nil || len(sel.ValuesLists) == 0 {
		return nil, mdberr.New(mdberr.E1, "INSERT without VALUES is not supported")
	}
	if stmt.OnConflictClause != nil {
		return nil, mdberr.New(mdberr.E1, "INSERT ... ON CONFLICT is not supported")
	}

	var rows [][]Expr
	for _, vl := range sel.ValuesLists {
		list := vl.GetList()
		if list == nil {
			return nil, mdberr.New(mdberr.E1, "malformed VALUES list")
		}
		if len(list.Items) != len(columns) {
			return nil, mdberr.New(mdberr.E1, "column count does not match value count")
		}
		row := make([]Expr, len(list.Items))
		for i, item := range list.Items {
			e, err := exprFromNode(item)
			if err != nil {
				return nil, err
			}
			row[i] = e
		}
		rows = append(rows, row)
	}

	return &InsertStmt{Table: stmt.Relation.Relname, Columns: columns, Rows: rows}, nil
}

func convertUpdate(stmt *pg_query.UpdateStmt) (*UpdateStmt, error) {
	out := &UpdateStmt{Table: stmt.Relation.Relname}
	for _, t := range stmt.TargetList {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		v, err := exprFromNode(rt.Val)
		if err != nil {
			return nil, err
		}
		out.Set = append(out.Set, Assignment{Column: rt.Name, Value: v})
	}
	if stmt.WhereClause != nil {
		w, err := exprFromNode(stmt.WhereClause)
		if err != nil {
			return nil, err
		}
		out.Where = w
	}
	return out, nil
}

func convertDelete(stmt *pg_query.DeleteStmt) (*DeleteStmt, error) {
	out := &DeleteStmt{Table: stmt.Relation.Relname}
	if stmt.WhereClause != nil {
		w, err := exprFromNode(stmt.WhereClause)
		if err != nil {
			return nil, err
		}
		out.Where = w
	}
	return out, nil
}

func convertCreateTable(stmt *pg_query.CreateStmt) (*CreateTableStmt, error) {
	out := &CreateTableStmt{Table: stmt.Relation.Relname}
	for _, elt := range stmt.TableElts {
		col := elt.GetColumnDef()
		if col == nil {
			continue
		}
		typeName := ""
		if col.TypeName != nil && len(col.TypeName.Names) > 0 {
			typeName = lastString(col.TypeName.Names)
		}
		out.Columns = append(out.Columns, ColumnDef{Name: col.Colname, Type: strings.ToUpper(typeName)})
	}
	return out, nil
}

func convertDrop(stmt *pg_query.DropStmt) (Stmt, error) {
	if len(stmt.Objects) == 0 {
		return nil, mdberr.New(mdberr.E1, "DROP without object name")
	}
	name, err := objectName(stmt.Objects[0])
	if err != nil {
		return nil, err
	}
	switch stmt.RemoveType {
	case pg_query.ObjectType_OBJECT_TABLE:
		return &DropTableStmt{Table: name}, nil
	case pg_query.ObjectType_OBJECT_INDEX:
		return &DropIndexStmt{Name: name}, nil
	default:
		return nil, mdberr.New(mdberr.E1, "unsupported DROP target")
	}
}

func objectName(node *pg_query.Node) (string, error) {
	if list := node.GetList(); list != nil && len(list.Items) > 0 {
		if s := list.Items[len(list.Items)-1].GetString_(); s != nil {
			return s.Sval, nil
		}
	}
	if s := node.GetString_(); s != nil {
		return s.Sval, nil
	}
	return "", mdberr.New(mdberr.E1, "malformed DROP object name")
}

func convertCreateIndex(stmt *pg_query.IndexStmt) (*CreateIndexStmt, error) {
	out := &CreateIndexStmt{Name: stmt.Idxname, Table: stmt.Relation.Relname}
	for _, p := range stmt.IndexParams {
		if ie := p.GetIndexElem(); ie != nil {
			out.Columns = append(out.Columns, ie.Name)
		}
	}
	return out, nil
}

func convertTransaction(stmt *pg_query.TransactionStmt) (*NoOpStmt, error) {
	switch stmt.Kind {
	case pg_query.TransactionStmtKind_TRANS_STMT_BEGIN:
		return &NoOpStmt{Kind: Begin}, nil
	case pg_query.TransactionStmtKind_TRANS_STMT_COMMIT:
		return &NoOpStmt{Kind: Commit}, nil
	case pg_query.TransactionStmtKind_TRANS_STMT_ROLLBACK:
		return &NoOpStmt{Kind: Rollback}, nil
	default:
		return nil, mdberr.New(mdberr.E1, "unsupported transaction statement")
	}
}

// --- expressions ---

func exprFromNode(node *pg_query.Node) (Expr, error) {
	if node == nil {
		return nil, nil
	}
	switch {
	case node.GetColumnRef() != nil:
		return columnRefExpr(node.GetColumnRef())
	case node.GetAConst() != nil:
		return constExpr(node.GetAConst())
	case node.GetAExpr() != nil:
		return aExprExpr(node.GetAExpr())
	case node.GetBoolExpr() != nil:
		return boolExprExpr(node.GetBoolExpr())
	case node.GetNullTest() != nil:
		return nullTestExpr(node.GetNullTest())
	case node.GetFuncCall() != nil:
		return funcCallExpr(node.GetFuncCall())
	case node.GetSubLink() != nil:
		return subLinkExpr(node.GetSubLink())
	case node.GetTypeCast() != nil:
		return exprFromNode(node.GetTypeCast().Arg)
	}
	return nil, mdberr.New(mdberr.E2, "unsupported expression shape")
}

func columnRefExpr(ref *pg_query.ColumnRef) (Expr, error) {
	var parts []string
	for _, f := range ref.Fields {
		if s := f.GetString_(); s != nil {
			parts = append(parts, s.Sval)
		}
		if f.GetAStar() != nil {
			parts = append(parts, "*")
		}
	}
	if len(parts) == 0 {
		return nil, mdberr.New(mdberr.E1, "malformed column reference")
	}
	if len(parts) == 1 {
		return &ColumnExpr{Name: parts[0]}, nil
	}
	return &ColumnExpr{Qualifier: strings.Join(parts[:len(parts)-1], "."), Name: parts[len(parts)-1]}, nil
}

func constExpr(c *pg_query.A_Const) (Expr, error) {
	switch {
	case c.Isnull:
		return &LiteralExpr{Kind: LitNull}, nil
	case c.GetIval() != nil:
		return &LiteralExpr{Kind: LitInt, Val: c.GetIval().Ival}, nil
	case c.GetFval() != nil:
		f, err := strconv.ParseFloat(c.GetFval().Fval, 64)
		if err != nil {
			return nil, mdberr.New(mdberr.E1, "malformed numeric literal %q", c.GetFval().Fval)
		}
		return &LiteralExpr{Kind: LitFloat, Val: f}, nil
	case c.GetSval() != nil:
		v := c.GetSval().Sval
		if strings.HasPrefix(v, sentinelPrefix) && strings.HasSuffix(v, sentinelSuffix) {
			return &PlaceholderExpr{Sentinel: v}, nil
		}
		return &LiteralExpr{Kind: LitString, Val: v}, nil
	case c.GetBoolval() != nil:
		return &LiteralExpr{Kind: LitBool, Val: c.GetBoolval().Boolval}, nil
	}
	return &LiteralExpr{Kind: LitNull}, nil
}

func aExprExpr(expr *pg_query.A_Expr) (Expr, error) {
	op := opName(expr.Name)
	switch expr.Kind {
	case pg_query.A_Expr_Kind_AEXPR_IN:
		target, err := exprFromNode(expr.Lexpr)
		if err != nil {
			return nil, err
		}
		list := expr.Rexpr.GetList()
		if list == nil {
			return nil, mdberr.New(mdberr.E1, "malformed IN list")
		}
		items := make([]Expr, len(list.Items))
		for i, it := range list.Items {
			e, err := exprFromNode(it)
			if err != nil {
				return nil, err
			}
			items[i] = e
		}
		return &InExpr{Target: target, Not: op == "<>", List: items}, nil

	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		target, err := exprFromNode(expr.Lexpr)
		if err != nil {
			return nil, err
		}
		list := expr.Rexpr.GetList()
		if list == nil || len(list.Items) != 2 {
			return nil, mdberr.New(mdberr.E1, "malformed BETWEEN bounds")
		}
		lo, err := exprFromNode(list.Items[0])
		if err != nil {
			return nil, err
		}
		hi, err := exprFromNode(list.Items[1])
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Target: target, Not: expr.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN, Low: lo, High: hi}, nil

	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		target, err := exprFromNode(expr.Lexpr)
		if err != nil {
			return nil, err
		}
		pattern, err := exprFromNode(expr.Rexpr)
		if err != nil {
			return nil, err
		}
		not := op == "!~~" || op == "!~~*"
		ilike := op == "~~*" || op == "!~~*"
		return &LikeExpr{Target: target, Not: not, ILike: ilike, Pattern: pattern}, nil
	}

	lhs, err := exprFromNode(expr.Lexpr)
	if err != nil {
		return nil, err
	}
	rhs, err := exprFromNode(expr.Rexpr)
	if err != nil {
		return nil, err
	}
	if !isComparisonOp(op) {
		return nil, mdberr.New(mdberr.E2, "unsupported operator %q", op)
	}
	return &BinOpExpr{Op: op, LHS: lhs, RHS: rhs}, nil
}

func isComparisonOp(op string) bool {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func opName(names []*pg_query.Node) string {
	if len(names) == 0 {
		return ""
	}
	if s := names[0].GetString_(); s != nil {
		return s.Sval
	}
	return ""
}

func boolExprExpr(be *pg_query.BoolExpr) (Expr, error) {
	var args []Expr
	for _, a := range be.Args {
		e, err := exprFromNode(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	switch be.Boolop {
	case pg_query.BoolExprType_AND_EXPR:
		return &LogicalExpr{Op: And, Args: args}, nil
	case pg_query.BoolExprType_OR_EXPR:
		return &LogicalExpr{Op: Or, Args: args}, nil
	case pg_query.BoolExprType_NOT_EXPR:
		return &LogicalExpr{Op: Not, Args: args}, nil
	}
	return nil, mdberr.New(mdberr.E2, "unsupported boolean expression")
}

func nullTestExpr(nt *pg_query.NullTest) (Expr, error) {
	target, err := exprFromNode(nt.Arg)
	if err != nil {
		return nil, err
	}
	return &IsNullExpr{Target: target, Not: nt.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL}, nil
}

func funcCallExpr(fc *pg_query.FuncCall) (Expr, error) {
	name := strings.ToUpper(lastString(fc.Funcname))
	var args []Expr
	for _, a := range fc.Args {
		e, err := exprFromNode(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	if fc.Over != nil {
		var partition []Expr
		for _, p := range fc.Over.PartitionClause {
			e, err := exprFromNode(p)
			if err != nil {
				return nil, err
			}
			partition = append(partition, e)
		}
		var order []OrderBy
		for _, s := range fc.Over.OrderClause {
			sb := s.GetSortBy()
			if sb == nil {
				continue
			}
			e, err := exprFromNode(sb.Node)
			if err != nil {
				return nil, err
			}
			order = append(order, OrderBy{Expr: e, Desc: sb.SortbyDir == pg_query.SortByDir_SORTBY_DESC})
		}
		return &WindowCallExpr{Func: name, Partition: partition, Order: order}, nil
	}
	return &FuncCallExpr{Name: name, Args: args, Star: fc.AggStar}, nil
}

func subLinkExpr(sl *pg_query.SubLink) (Expr, error) {
	sub := sl.Subselect.GetSelectStmt()
	if sub == nil {
		return nil, mdberr.New(mdberr.E1, "malformed subquery")
	}
	inner, err := convertTopSelect(sub)
	if err != nil {
		return nil, err
	}
	switch sl.SubLinkType {
	case pg_query.SubLinkType_EXISTS_SUBLINK:
		return &ExistsExpr{Subquery: inner}, nil
	case pg_query.SubLinkType_ANY_SUBLINK:
		target, err := exprFromNode(sl.Testexpr)
		if err != nil {
			return nil, err
		}
		return &InExpr{Target: target, Subquery: inner}, nil
	default:
		return nil, mdberr.New(mdberr.E2, "unsupported subquery form")
	}
}

func constInt(node *pg_query.Node) (int, error) {
	c := node.GetAConst()
	if c == nil || c.GetIval() == nil {
		return 0, mdberr.New(mdberr.E1, "expected integer literal")
	}
	return int(c.GetIval().Ival), nil
}

func lastString(nodes []*pg_query.Node) string {
	if len(nodes) == 0 {
		return ""
	}
	if s := nodes[len(nodes)-1].GetString_(); s != nil {
		return s.Sval
	}
	return ""
}
