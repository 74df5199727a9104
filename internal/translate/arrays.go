package translate

import pg_query "github.com/pganalyze/pg_query_go/v6"

// rewriteArrayOperators is pipeline stage 1: lower @>, <@ and && into
// their array_has_all/array_has_any function-call equivalents.
// Reports whether it changed anything in sel.
func rewriteArrayOperators(sel *pg_query.SelectStmt) bool {
	changed := false
	replace := func(node *pg_query.Node) *pg_query.Node {
		r, ok := lowerArrayOp(node)
		if ok {
			changed = true
			return r
		}
		return node
	}
	sel.WhereClause = mapExprTree(sel.WhereClause, replace)
	sel.HavingClause = mapExprTree(sel.HavingClause, replace)
	for _, f := range sel.FromClause {
		if je, ok := f.Node.(*pg_query.Node_JoinExpr); ok {
			je.JoinExpr.Quals = mapExprTree(je.JoinExpr.Quals, replace)
		}
	}
	for _, t := range sel.TargetList {
		if rt, ok := t.Node.(*pg_query.Node_ResTarget); ok {
			rt.ResTarget.Val = mapExprTree(rt.ResTarget.Val, replace)
		}
	}
	return changed
}

// rewriteDMLArrayOperators lowers array operators in the pieces an
// UPDATE or DELETE statement exposes outside any nested select: the
// SET target list and the WHERE clause.
func rewriteDMLArrayOperators(targetList []*pg_query.Node, where **pg_query.Node) bool {
	changed := false
	replace := func(node *pg_query.Node) *pg_query.Node {
		r, ok := lowerArrayOp(node)
		if ok {
			changed = true
			return r
		}
		return node
	}
	for _, t := range targetList {
		if rt, ok := t.Node.(*pg_query.Node_ResTarget); ok {
			rt.ResTarget.Val = mapExprTree(rt.ResTarget.Val, replace)
		}
	}
	if where != nil {
		*where = mapExprTree(*where, replace)
	}
	return changed
}

// lowerArrayOp rewrites a single binary A_Expr node if its operator is
// one of the three array containment/overlap operators; ok is false
// (and node returned unchanged) for anything else.
func lowerArrayOp(node *pg_query.Node) (*pg_query.Node, bool) {
	op := aexprOpName(node)
	ae, _ := node.Node.(*pg_query.Node_AExpr)
	if ae == nil {
		return node, false
	}
	l, r := ae.AExpr.Lexpr, ae.AExpr.Rexpr
	switch op {
	case "@>":
		return funcCall("array_has_all", l, r), true
	case "<@":
		return funcCall("array_has_all", r, l), true
	case "&&":
		return funcCall("array_has_any", l, r), true
	default:
		return node, false
	}
}
