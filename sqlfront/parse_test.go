package sqlfront

import (
	"testing"

	"github.com/kitfactory/mongosql/binder"
	"github.com/kitfactory/mongosql/mdberr"
)

func parseSQL(t *testing.T, sql string, params binder.Params) Stmt {
	t.Helper()
	bound, err := binder.Bind(sql, params)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if err := Validate(stmt); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	return stmt
}

func TestSimpleSelectWithWhere(t *testing.T) {
	stmt := parseSQL(t, "SELECT id, name FROM users WHERE id = %s", binder.Params{Positional: []any{1}})
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		t.Fatalf("expected *SelectStmt, got %T", stmt)
	}
	if sel.From.Table != "users" {
		t.Fatalf("unexpected FROM: %+v", sel.From)
	}
	if len(sel.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(sel.Columns))
	}
	bin, ok := sel.Where.(*BinOpExpr)
	if !ok || bin.Op != "=" {
		t.Fatalf("expected id = placeholder, got %+v", sel.Where)
	}
	if _, ok := bin.RHS.(*PlaceholderExpr); !ok {
		t.Fatalf("expected RHS to be the bound placeholder, got %T", bin.RHS)
	}
}

func TestDeleteWithoutWhereIsE3(t *testing.T) {
	bound, err := binder.Bind("DELETE FROM users", binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(stmt); !mdberr.Is(err, mdberr.E3) {
		t.Fatalf("expected E3, got %v", err)
	}
}

func TestUpdateWithoutWhereIsE3(t *testing.T) {
	bound, err := binder.Bind("UPDATE users SET name = 'x'", binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(stmt); !mdberr.Is(err, mdberr.E3) {
		t.Fatalf("expected E3, got %v", err)
	}
}

func TestNonEquiJoinIsE2(t *testing.T) {
	bound, err := binder.Bind("SELECT u.id FROM users u JOIN orders o ON u.id > o.user_id", binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(stmt); !mdberr.Is(err, mdberr.E2) {
		t.Fatalf("expected E2, got %v", err)
	}
}

func TestFullOuterJoinIsE2(t *testing.T) {
	bound, err := binder.Bind("SELECT u.id FROM users u FULL OUTER JOIN orders o ON u.id = o.user_id", binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(stmt); !mdberr.Is(err, mdberr.E2) {
		t.Fatalf("expected E2, got %v", err)
	}
}

func TestUnionWithoutAllIsE2(t *testing.T) {
	bound, err := binder.Bind("SELECT id FROM a UNION SELECT id FROM b", binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	_, err = Parse(bound.SQL)
	if !mdberr.Is(err, mdberr.E2) {
		t.Fatalf("expected E2, got %v", err)
	}
}

func TestUnionAllParses(t *testing.T) {
	stmt := parseSQL(t, "SELECT id FROM a UNION ALL SELECT id FROM b", binder.Params{})
	sel, ok := stmt.(*SelectStmt)
	if !ok || sel.UnionAll == nil {
		t.Fatalf("expected UNION ALL tail, got %+v", stmt)
	}
}

func TestCorrelatedExistsIsE2(t *testing.T) {
	bound, err := binder.Bind(
		"SELECT id FROM users u WHERE EXISTS (SELECT 1 FROM orders o WHERE o.user_id = u.id)",
		binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(stmt); !mdberr.Is(err, mdberr.E2) {
		t.Fatalf("expected E2, got %v", err)
	}
}

func TestUncorrelatedExistsParses(t *testing.T) {
	stmt := parseSQL(t, "SELECT id FROM users WHERE EXISTS (SELECT 1 FROM orders WHERE orders.total > %s)",
		binder.Params{Positional: []any{10}})
	sel := stmt.(*SelectStmt)
	if _, ok := sel.Where.(*ExistsExpr); !ok {
		t.Fatalf("expected ExistsExpr, got %T", sel.Where)
	}
}

func TestWindowRowNumberWithoutPartitionParses(t *testing.T) {
	stmt := parseSQL(t, "SELECT id, ROW_NUMBER() OVER (ORDER BY id) AS rn FROM users", binder.Params{})
	sel := stmt.(*SelectStmt)
	if !sel.UsesWindow {
		t.Fatalf("expected UsesWindow to be true")
	}
}

func TestWindowWithPartitionIsE2(t *testing.T) {
	bound, err := binder.Bind("SELECT id, ROW_NUMBER() OVER (PARTITION BY name ORDER BY id) AS rn FROM users", binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(stmt); !mdberr.Is(err, mdberr.E2) {
		t.Fatalf("expected E2, got %v", err)
	}
}

func TestMergeIsE1(t *testing.T) {
	bound, err := binder.Bind("MERGE INTO users USING dual ON (1=1) WHEN MATCHED THEN UPDATE SET name = 'x'", binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	_, err = Parse(bound.SQL)
	if !mdberr.Is(err, mdberr.E1) {
		t.Fatalf("expected E1, got %v", err)
	}
}

func TestDerivedTableParses(t *testing.T) {
	stmt := parseSQL(t,
		"SELECT id, name FROM (SELECT id, name FROM users WHERE id >= %s) AS t WHERE id < %s ORDER BY id DESC",
		binder.Params{Positional: []any{2, 3}})
	sel := stmt.(*SelectStmt)
	if sel.From.Derived == nil {
		t.Fatalf("expected derived table")
	}
}

func TestTwoHopJoinParses(t *testing.T) {
	stmt := parseSQL(t,
		"SELECT u.id, a.city FROM users u INNER JOIN orders o ON u.id = o.user_id INNER JOIN addresses a ON o.id = a.order_id WHERE a.city = %s",
		binder.Params{Positional: []any{"Tokyo"}})
	sel := stmt.(*SelectStmt)
	if len(sel.Joins) != 2 {
		t.Fatalf("expected 2 joins, got %d", len(sel.Joins))
	}
}

func TestJoinPredicateEquatingTwoColumnsFromTheSameSideIsE2(t *testing.T) {
	bound, err := binder.Bind(
		"SELECT u.id FROM users u INNER JOIN orders o ON u.id = o.user_id INNER JOIN addresses a ON o.id = o.order_id",
		binder.Params{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	stmt, err := Parse(bound.SQL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(stmt); !mdberr.Is(err, mdberr.E2) {
		t.Fatalf("expected E2, got %v", err)
	}
}

func TestBeginCommitRollbackAreNoOps(t *testing.T) {
	for _, sql := range []string{"BEGIN", "COMMIT", "ROLLBACK"} {
		bound, err := binder.Bind(sql, binder.Params{})
		if err != nil {
			t.Fatalf("bind %q: %v", sql, err)
		}
		stmt, err := Parse(bound.SQL)
		if err != nil {
			t.Fatalf("parse %q: %v", sql, err)
		}
		if _, ok := stmt.(*NoOpStmt); !ok {
			t.Fatalf("%q: expected NoOpStmt, got %T", sql, stmt)
		}
	}
}
