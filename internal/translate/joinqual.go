package translate

import pg_query "github.com/pganalyze/pg_query_go/v6"

// rewriteJoinQualification is pipeline stage 3 for SELECT statements:
// qualify ambiguous column references introduced by equi-joins.
func rewriteJoinQualification(sel *pg_query.SelectStmt) bool {
	if len(flattenFromSources(sel.FromClause)) < 2 {
		return false
	}
	return qualifyJoinColumns(sel.FromClause, sel.WhereClause, sel.TargetList, sel.SortClause)
}

// qualifyJoinColumns implements stage 3 directly against the pieces an
// UPDATE/DELETE statement exposes too: an auxiliary FROM/USING list, a
// WHERE clause and (for SELECT) a target list and ORDER BY.
func qualifyJoinColumns(from []*pg_query.Node, where *pg_query.Node, targetList, sortClause []*pg_query.Node) bool {
	if !hasQualificationWork(from) {
		return false
	}

	ambiguous := map[string]bool{}
	changed := false

	for _, f := range from {
		walkJoins(f, func(je *pg_query.JoinExpr) {
			leftQual, leftOK := rangeVarQualifier(je.Larg)
			rightQual, rightOK := rangeVarQualifier(je.Rarg)

			if je.Quals != nil {
				walkEqualities(je.Quals, func(l, r *pg_query.Node) {
					lName, rName := bareColumnName(l), bareColumnName(r)
					if lName == "" || rName == "" || lName != rName {
						return
					}
					lUnqualified := len(columnRefParts(l)) == 1
					rUnqualified := len(columnRefParts(r)) == 1
					if !lUnqualified && !rUnqualified {
						return
					}
					if lUnqualified && leftOK {
						qualify(l, leftQual)
						changed = true
					}
					if rUnqualified && rightOK {
						qualify(r, rightQual)
						changed = true
					}
					ambiguous[lName] = true
				})
			}

			for _, u := range je.UsingClause {
				if s, ok := u.Node.(*pg_query.Node_String_); ok {
					ambiguous[s.String_.Sval] = true
				}
			}
		})
	}

	if len(ambiguous) == 0 {
		return changed
	}

	defaultQualifier, ok := firstFromQualifier(from)
	if !ok {
		return changed
	}

	qualifyDefault := func(node *pg_query.Node) {
		name := bareColumnName(node)
		if name == "" || !ambiguous[name] {
			return
		}
		qualify(node, defaultQualifier)
		changed = true
	}

	walkColumnRefs(where, qualifyDefault)
	for _, t := range targetList {
		if rt, ok := t.Node.(*pg_query.Node_ResTarget); ok {
			walkColumnRefs(rt.ResTarget.Val, qualifyDefault)
		}
	}
	for _, s := range sortClause {
		if sc, ok := s.Node.(*pg_query.Node_SortBy); ok {
			walkColumnRefs(sc.SortBy.Node, qualifyDefault)
		}
	}

	return changed
}

// hasQualificationWork is the early exit: descent is skipped entirely
// unless some ON clause contains an unqualified column reference or
// some join carries a USING clause.
func hasQualificationWork(from []*pg_query.Node) bool {
	found := false
	for _, f := range from {
		walkJoins(f, func(je *pg_query.JoinExpr) {
			if found {
				return
			}
			if len(je.UsingClause) > 0 {
				found = true
				return
			}
			walkColumnRefs(je.Quals, func(node *pg_query.Node) {
				if bareColumnName(node) != "" {
					found = true
				}
			})
		})
		if found {
			return true
		}
	}
	return false
}

// flattenFromSources decomposes comma-separated FROM entries and
// nested joins into the flat, left-to-right list of base range items
// they ultimately reference, used only to count sources.
func flattenFromSources(from []*pg_query.Node) []*pg_query.Node {
	var out []*pg_query.Node
	var visit func(*pg_query.Node)
	visit = func(n *pg_query.Node) {
		if n == nil {
			return
		}
		if je, ok := n.Node.(*pg_query.Node_JoinExpr); ok {
			visit(je.JoinExpr.Larg)
			visit(je.JoinExpr.Rarg)
			return
		}
		out = append(out, n)
	}
	for _, f := range from {
		visit(f)
	}
	return out
}

// firstFromQualifier is the "default qualifier": the leftmost base
// range item's alias or table name.
func firstFromQualifier(from []*pg_query.Node) (string, bool) {
	sources := flattenFromSources(from)
	if len(sources) == 0 {
		return "", false
	}
	return rangeVarQualifier(sources[0])
}

// walkJoins visits every JoinExpr reachable from a FROM entry, inner
// joins before the outer ones that contain them.
func walkJoins(node *pg_query.Node, fn func(*pg_query.JoinExpr)) {
	if node == nil {
		return
	}
	je, ok := node.Node.(*pg_query.Node_JoinExpr)
	if !ok {
		return
	}
	walkJoins(je.JoinExpr.Larg, fn)
	walkJoins(je.JoinExpr.Rarg, fn)
	fn(je.JoinExpr)
}

// walkEqualities recurses through AND/OR connectives of an ON clause
// and reports every top-level "a = b" leaf it finds.
func walkEqualities(node *pg_query.Node, fn func(l, r *pg_query.Node)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		for _, a := range n.BoolExpr.Args {
			walkEqualities(a, fn)
		}
	case *pg_query.Node_AExpr:
		if aexprOpName(node) == "=" {
			fn(n.AExpr.Lexpr, n.AExpr.Rexpr)
		}
	}
}

// walkColumnRefs visits every ColumnRef reachable from an expression
// tree, recursing through the node shapes the rewrite stages touch.
func walkColumnRefs(node *pg_query.Node, fn func(*pg_query.Node)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_ColumnRef:
		fn(node)
	case *pg_query.Node_BoolExpr:
		for _, a := range n.BoolExpr.Args {
			walkColumnRefs(a, fn)
		}
	case *pg_query.Node_AExpr:
		walkColumnRefs(n.AExpr.Lexpr, fn)
		walkColumnRefs(n.AExpr.Rexpr, fn)
	case *pg_query.Node_NullTest:
		walkColumnRefs(n.NullTest.Arg, fn)
	case *pg_query.Node_FuncCall:
		for _, a := range n.FuncCall.Args {
			walkColumnRefs(a, fn)
		}
	case *pg_query.Node_TypeCast:
		walkColumnRefs(n.TypeCast.Arg, fn)
	}
}
