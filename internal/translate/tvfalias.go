package translate

import pg_query "github.com/pganalyze/pg_query_go/v6"

// generateSeriesColumn is the column name DuckDB assigns to an
// unaliased generate_series(...) table function result.
const generateSeriesColumn = "generate_series"

// rewriteTVFAliasing is pipeline stage 4: generate_series(...) AS
// alias exposes its single column as "generate_series" in DuckDB, not
// under the range alias the way PostgreSQL lets a single-column table
// function be referenced bare. Runs before join qualification (see
// design notes) so the default-qualifier pass there doesn't clobber
// these bare names first.
func rewriteTVFAliasing(sel *pg_query.SelectStmt) bool {
	aliases := tvfAliases(sel.FromClause)
	if len(aliases) == 0 {
		return false
	}

	changed := false
	rewrite := func(node *pg_query.Node) {
		name := bareColumnName(node)
		if name == "" || !aliases[name] {
			return
		}
		renameColumnRef(node, name, generateSeriesColumn)
		changed = true
	}

	walkColumnRefs(sel.WhereClause, rewrite)
	walkColumnRefs(sel.HavingClause, rewrite)
	for _, t := range sel.TargetList {
		if rt, ok := t.Node.(*pg_query.Node_ResTarget); ok {
			walkColumnRefs(rt.ResTarget.Val, rewrite)
		}
	}
	for _, s := range sel.SortClause {
		if sc, ok := s.Node.(*pg_query.Node_SortBy); ok {
			walkColumnRefs(sc.SortBy.Node, rewrite)
		}
	}
	return changed
}

// tvfAliases collects the alias names of FROM entries that invoke
// generate_series, flattening joins the same way join qualification does.
func tvfAliases(from []*pg_query.Node) map[string]bool {
	aliases := map[string]bool{}
	for _, src := range flattenFromSources(from) {
		rf, ok := src.Node.(*pg_query.Node_RangeFunction)
		if !ok || rf.RangeFunction.Alias == nil {
			continue
		}
		if !callsGenerateSeries(rf.RangeFunction) {
			continue
		}
		aliases[rf.RangeFunction.Alias.Aliasname] = true
	}
	return aliases
}

func callsGenerateSeries(rf *pg_query.RangeFunction) bool {
	for _, entry := range rf.Functions {
		list, ok := entry.Node.(*pg_query.Node_List)
		if !ok || len(list.List.Items) == 0 {
			continue
		}
		fc, ok := list.List.Items[0].Node.(*pg_query.Node_FuncCall)
		if !ok || len(fc.FuncCall.Funcname) == 0 {
			continue
		}
		last := fc.FuncCall.Funcname[len(fc.FuncCall.Funcname)-1]
		if s, ok := last.Node.(*pg_query.Node_String_); ok && s.String_.Sval == generateSeriesColumn {
			return true
		}
	}
	return false
}
