package translate

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// triggerTokens are the substrings NeedsTranslation checks for. The
// prefilter may over-approximate (false positives just cost an extra
// parse) but must never under-approximate.
var triggerTokens = []string{"@>", "<@", "&&", "JOIN", "UNION", "INTERSECT", "EXCEPT", "generate_series"}

// arrayTokens are the subset of trigger tokens that gate the array
// operator lowering stage when its mode is ArrayAuto.
var arrayTokens = []string{"@>", "<@", "&&"}

// ArrayMode gates the array operator lowering stage.
type ArrayMode int

const (
	// ArrayAuto lowers array operators only when the statement text
	// contains one of them.
	ArrayAuto ArrayMode = iota
	// ArrayAlways lowers array operators on every parsed statement.
	ArrayAlways
	// ArrayNever leaves array operators untouched.
	ArrayNever
)

// NeedsTranslation is the cheap substring prefilter described in the
// translation pipeline's public contract.
func NeedsTranslation(sql string) bool {
	upper := strings.ToUpper(sql)
	for _, tok := range triggerTokens {
		if strings.Contains(upper, strings.ToUpper(tok)) {
			return true
		}
	}
	return false
}

type cacheEntry struct {
	sql      string
	modified bool
}

// Cache is a bounded, thread-safe front end for Translate. Only
// statements that were actually modified are cached. Unmodified
// statements without a trigger token short-circuit via
// NeedsTranslation; unmodified ones that contain a trigger token are
// parsed again on every call.
type Cache struct {
	mu     sync.Mutex
	inner  *lru.Cache[string, cacheEntry]
	arrays ArrayMode
}

// NewCache builds a translation cache with the given entry capacity
// and array-lowering mode.
func NewCache(size int, arrays ArrayMode) (*Cache, error) {
	inner, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, arrays: arrays}, nil
}

// Translate returns the DuckDB-executable form of sql and whether it
// was modified, consulting and (on a cache miss that did modify
// something) populating the cache. It never returns an error: parse
// failures fall back to the original SQL with modified=false.
func (c *Cache) Translate(sql string) (string, bool) {
	if !NeedsTranslation(sql) {
		return sql, false
	}
	c.mu.Lock()
	entry, ok := c.inner.Get(sql)
	c.mu.Unlock()
	if ok {
		return entry.sql, entry.modified
	}

	out, modified := translateWith(sql, c.arrays)
	if modified {
		c.mu.Lock()
		c.inner.Add(sql, cacheEntry{sql: out, modified: true})
		c.mu.Unlock()
	}
	return out, modified
}

// Translate runs the full rewrite pipeline once, uncached, with array
// lowering in its default auto mode. Exported directly so callers
// (and tests) can bypass the cache.
func Translate(sql string) (string, bool) {
	return translateWith(sql, ArrayAuto)
}

func translateWith(sql string, arrays ArrayMode) (string, bool) {
	tree, err := parse(sql)
	if err != nil {
		return sql, false
	}

	lowerArrays := arrays == ArrayAlways
	if arrays == ArrayAuto {
		for _, tok := range arrayTokens {
			if strings.Contains(sql, tok) {
				lowerArrays = true
				break
			}
		}
	}

	modified := false
	forEachStmt(tree, func(sel *pg_query.SelectStmt) {
		if lowerArrays && rewriteArrayOperators(sel) {
			modified = true
		}
		if hoistSetOpWith(sel) {
			modified = true
		}
		// Table-function aliasing runs before join qualification: it
		// targets specific bare names that qualification's
		// default-qualifier pass would otherwise claim first.
		if rewriteTVFAliasing(sel) {
			modified = true
		}
		if rewriteJoinQualification(sel) {
			modified = true
		}
	})

	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}
		switch n := raw.Stmt.Node.(type) {
		case *pg_query.Node_UpdateStmt:
			if lowerArrays && rewriteDMLArrayOperators(n.UpdateStmt.TargetList, &n.UpdateStmt.WhereClause) {
				modified = true
			}
			if qualifyJoinColumns(n.UpdateStmt.FromClause, n.UpdateStmt.WhereClause, n.UpdateStmt.TargetList, nil) {
				modified = true
			}
		case *pg_query.Node_DeleteStmt:
			if lowerArrays && rewriteDMLArrayOperators(nil, &n.DeleteStmt.WhereClause) {
				modified = true
			}
			if qualifyJoinColumns(n.DeleteStmt.UsingClause, n.DeleteStmt.WhereClause, nil, nil) {
				modified = true
			}
		}
	}

	if !modified {
		return sql, false
	}

	out, err := deparse(tree)
	if err != nil {
		return sql, false
	}

	// Stage 4 is the one rewrite that introduces a bare identifier
	// (alias.generate_series) not present in the source text; guard
	// against a round-trip that the deparser can't reparse by falling
	// back to the unmodified input, the same way an initial parse
	// failure is swallowed.
	if _, err := parse(out); err != nil {
		return sql, false
	}

	return out, true
}
