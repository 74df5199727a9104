// Package translate implements the PostgreSQL-dialect-to-DuckDB AST
// rewrite pipeline: parse, apply an ordered sequence of idempotent tree
// rewrites, and re-serialize.
package translate

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// parse wraps the PostgreSQL parser. The caller is expected to swallow
// the error and fall back to the unmodified input; it is split out as
// its own step so stages can be tested directly against a parsed tree.
func parse(sql string) (*pg_query.ParseResult, error) {
	return pg_query.Parse(sql)
}

// deparse re-serializes a rewritten tree back to SQL text.
func deparse(tree *pg_query.ParseResult) (string, error) {
	return pg_query.Deparse(tree)
}
