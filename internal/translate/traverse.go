package translate

import pg_query "github.com/pganalyze/pg_query_go/v6"

// forEachStmt visits the top-level Stmt of every RawStmt in a parse
// result through walkTopLevel, which dispatches SELECTs to
// forEachSelect and UPDATE/DELETE/INSERT...SELECT to their nested
// selects, so a single driver loop covers all four statement kinds.
func forEachStmt(res *pg_query.ParseResult, visit func(*pg_query.SelectStmt)) {
	for _, raw := range res.Stmts {
		if raw.Stmt == nil {
			continue
		}
		walkTopLevel(raw.Stmt, visit)
	}
}

func walkTopLevel(node *pg_query.Node, visit func(*pg_query.SelectStmt)) {
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		forEachSelect(node, visit)
	case *pg_query.Node_UpdateStmt:
		forEachExprSelect(n.UpdateStmt.WhereClause, visit)
		for _, f := range n.UpdateStmt.FromClause {
			forEachFromEntry(f, visit)
		}
	case *pg_query.Node_DeleteStmt:
		forEachExprSelect(n.DeleteStmt.WhereClause, visit)
		for _, f := range n.DeleteStmt.UsingClause {
			forEachFromEntry(f, visit)
		}
	case *pg_query.Node_InsertStmt:
		if n.InsertStmt.SelectStmt != nil {
			walkTopLevel(n.InsertStmt.SelectStmt, visit)
		}
	}
}

// forEachSelect visits sel itself (as a mutation target for the
// current stage), then recurses into every nested select reachable
// from it: CTE bodies, set-operation arms, FROM-clause subqueries and
// joins, and scalar/EXISTS subqueries in WHERE/HAVING.
func forEachSelect(node *pg_query.Node, visit func(*pg_query.SelectStmt)) {
	n, ok := node.Node.(*pg_query.Node_SelectStmt)
	if !ok || n.SelectStmt == nil {
		return
	}
	sel := n.SelectStmt
	visit(sel)

	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			c, ok := cte.Node.(*pg_query.Node_CommonTableExpr)
			if !ok || c.CommonTableExpr.Ctequery == nil {
				continue
			}
			walkTopLevel(c.CommonTableExpr.Ctequery, visit)
		}
	}

	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		if sel.Larg != nil {
			forEachSelect(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel.Larg}}, visit)
		}
		if sel.Rarg != nil {
			forEachSelect(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel.Rarg}}, visit)
		}
	}

	for _, f := range sel.FromClause {
		forEachFromEntry(f, visit)
	}

	forEachExprSelect(sel.WhereClause, visit)
	forEachExprSelect(sel.HavingClause, visit)
	for _, t := range sel.TargetList {
		if re, ok := t.Node.(*pg_query.Node_ResTarget); ok {
			forEachExprSelect(re.ResTarget.Val, visit)
		}
	}
}

// forEachFromEntry recurses into the FROM clause: subqueries gain full
// traversal, joins recurse on both arms.
func forEachFromEntry(node *pg_query.Node, visit func(*pg_query.SelectStmt)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeSubselect:
		if n.RangeSubselect.Subquery != nil {
			walkTopLevel(n.RangeSubselect.Subquery, visit)
		}
	case *pg_query.Node_JoinExpr:
		forEachFromEntry(n.JoinExpr.Larg, visit)
		forEachFromEntry(n.JoinExpr.Rarg, visit)
		forEachExprSelect(n.JoinExpr.Quals, visit)
	}
}

// forEachExprSelect finds SubLink nodes (scalar, EXISTS, IN subqueries)
// reachable from an expression tree and recurses into their bodies.
// It does not mutate the expression itself; stage-specific rewrites
// walk the expression tree with their own logic.
func forEachExprSelect(node *pg_query.Node, visit func(*pg_query.SelectStmt)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SubLink:
		if n.SubLink.Subselect != nil {
			walkTopLevel(n.SubLink.Subselect, visit)
		}
	case *pg_query.Node_BoolExpr:
		for _, a := range n.BoolExpr.Args {
			forEachExprSelect(a, visit)
		}
	case *pg_query.Node_AExpr:
		forEachExprSelect(n.AExpr.Lexpr, visit)
		forEachExprSelect(n.AExpr.Rexpr, visit)
	case *pg_query.Node_NullTest:
		forEachExprSelect(n.NullTest.Arg, visit)
	}
}

// mapExprTree applies fn bottom-up across the expression nodes a
// rewrite stage cares about (boolean connectives and binary operator
// expressions), replacing each visited node with fn's result. Leaves
// (column refs, constants, function calls) are returned unchanged
// unless fn itself matches them.
func mapExprTree(node *pg_query.Node, fn func(*pg_query.Node) *pg_query.Node) *pg_query.Node {
	if node == nil {
		return nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		for i, a := range n.BoolExpr.Args {
			n.BoolExpr.Args[i] = mapExprTree(a, fn)
		}
	case *pg_query.Node_AExpr:
		n.AExpr.Lexpr = mapExprTree(n.AExpr.Lexpr, fn)
		n.AExpr.Rexpr = mapExprTree(n.AExpr.Rexpr, fn)
	}
	return fn(node)
}
