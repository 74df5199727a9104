package translate

import pg_query "github.com/pganalyze/pg_query_go/v6"

// Small constructors for the AST fragments the rewrite stages need to
// synthesize. pg_query_go models every node as a one-field oneof
// wrapper, so building a tree fragment by hand means re-wrapping at
// every level; these keep the rewrite stages themselves readable.

func stringNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}

func columnRef(parts ...string) *pg_query.Node {
	fields := make([]*pg_query.Node, len(parts))
	for i, p := range parts {
		fields[i] = stringNode(p)
	}
	return &pg_query.Node{Node: &pg_query.Node_ColumnRef{ColumnRef: &pg_query.ColumnRef{Fields: fields}}}
}

func funcCall(name string, args ...*pg_query.Node) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_FuncCall{FuncCall: &pg_query.FuncCall{
		Funcname: []*pg_query.Node{stringNode(name)},
		Args:     args,
	}}}
}

// columnRefParts returns the dotted name parts of a column reference,
// or nil if node is not an unqualified-or-qualified ColumnRef (e.g. it
// is a "*" wildcard or some other expression).
func columnRefParts(node *pg_query.Node) []string {
	if node == nil {
		return nil
	}
	cr, ok := node.Node.(*pg_query.Node_ColumnRef)
	if !ok {
		return nil
	}
	parts := make([]string, 0, len(cr.ColumnRef.Fields))
	for _, f := range cr.ColumnRef.Fields {
		s, ok := f.Node.(*pg_query.Node_String_)
		if !ok {
			return nil // A_Star or indirection we don't rewrite
		}
		parts = append(parts, s.String_.Sval)
	}
	return parts
}

// bareColumnName returns the column name of an unqualified reference
// ("col", not "t.col"), or "" if node is qualified or not a column ref.
func bareColumnName(node *pg_query.Node) string {
	parts := columnRefParts(node)
	if len(parts) != 1 {
		return ""
	}
	return parts[0]
}

// qualify rewrites an unqualified ColumnRef node in place to be
// prefixed with qualifier, preserving the node identity other code may
// hold a pointer to.
func qualify(node *pg_query.Node, qualifier string) {
	cr, ok := node.Node.(*pg_query.Node_ColumnRef)
	if !ok || len(cr.ColumnRef.Fields) != 1 {
		return
	}
	cr.ColumnRef.Fields = []*pg_query.Node{stringNode(qualifier), cr.ColumnRef.Fields[0]}
}

// renameColumnRef replaces an unqualified ColumnRef's single field
// with qualifier.column in place.
func renameColumnRef(node *pg_query.Node, qualifier, column string) {
	cr, ok := node.Node.(*pg_query.Node_ColumnRef)
	if !ok {
		return
	}
	cr.ColumnRef.Fields = []*pg_query.Node{stringNode(qualifier), stringNode(column)}
}

// aexprOpName returns the bare operator text of a binary A_Expr
// ("=", "@>", ...), or "" if node isn't a simple binary operator
// expression.
func aexprOpName(node *pg_query.Node) string {
	ae, ok := node.Node.(*pg_query.Node_AExpr)
	if !ok || ae.AExpr.Kind != pg_query.A_Expr_Kind_AEXPR_OP {
		return ""
	}
	if len(ae.AExpr.Name) != 1 {
		return ""
	}
	s, ok := ae.AExpr.Name[0].Node.(*pg_query.Node_String_)
	if !ok {
		return ""
	}
	return s.String_.Sval
}

// rangeVarQualifier returns the alias of a FROM entry if it has one,
// else the relation's own name. Used as the "qualifier" a bare column
// is rewritten against.
func rangeVarQualifier(node *pg_query.Node) (string, bool) {
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		if n.RangeVar.Alias != nil && n.RangeVar.Alias.Aliasname != "" {
			return n.RangeVar.Alias.Aliasname, true
		}
		return n.RangeVar.Relname, true
	case *pg_query.Node_RangeSubselect:
		if n.RangeSubselect.Alias != nil {
			return n.RangeSubselect.Alias.Aliasname, true
		}
		return "", false
	case *pg_query.Node_RangeFunction:
		if n.RangeFunction.Alias != nil {
			return n.RangeFunction.Alias.Aliasname, true
		}
		return "", false
	case *pg_query.Node_JoinExpr:
		if n.JoinExpr.Alias != nil {
			return n.JoinExpr.Alias.Aliasname, true
		}
		return "", false
	default:
		return "", false
	}
}
