package translate

import pg_query "github.com/pganalyze/pg_query_go/v6"

// hoistSetOpWith is pipeline stage 2. Applied to the root SelectStmt
// of a set-operation chain (Op != SETOP_NONE), it merges every arm's
// WITH clause into a single top-level one and clears the arms'. It
// aborts (reporting false, tree untouched) if any CTE name collides
// across arms or with an existing top-level WITH.
func hoistSetOpWith(sel *pg_query.SelectStmt) bool {
	if sel.Op == pg_query.SetOperation_SETOP_NONE {
		return false
	}

	var arms []*pg_query.SelectStmt
	var collect func(*pg_query.SelectStmt)
	collect = func(s *pg_query.SelectStmt) {
		if s == nil {
			return
		}
		if s.Op != pg_query.SetOperation_SETOP_NONE {
			collect(s.Larg)
			collect(s.Rarg)
			return
		}
		arms = append(arms, s)
	}
	collect(sel.Larg)
	collect(sel.Rarg)

	seen := map[string]bool{}
	if sel.WithClause != nil {
		for _, c := range sel.WithClause.Ctes {
			if name := cteName(c); name != "" {
				seen[name] = true
			}
		}
	}

	hasAny := false
	for _, a := range arms {
		if a.WithClause == nil {
			continue
		}
		hasAny = true
		for _, c := range a.WithClause.Ctes {
			name := cteName(c)
			if name != "" {
				if seen[name] {
					return false // collision: leave the tree alone
				}
				seen[name] = true
			}
		}
	}
	if !hasAny {
		return false
	}

	var hoisted []*pg_query.Node
	for _, a := range arms {
		if a.WithClause == nil {
			continue
		}
		hoisted = append(hoisted, a.WithClause.Ctes...)
		a.WithClause = nil
	}
	if sel.WithClause == nil {
		sel.WithClause = &pg_query.WithClause{}
	}
	sel.WithClause.Ctes = append(sel.WithClause.Ctes, hoisted...)
	return true
}

func cteName(node *pg_query.Node) string {
	c, ok := node.Node.(*pg_query.Node_CommonTableExpr)
	if !ok || c.CommonTableExpr == nil {
		return ""
	}
	return c.CommonTableExpr.Ctename
}
