package codec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Fingerprint computes a stable identifier for the shape of a bound
// parameter list (count and kinds), used to key the prepared
// statement cache alongside the rewritten SQL text.
func Fingerprint(args []any) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		if v, ok := a.(Value); ok {
			b.WriteString(string(v.Kind))
			continue
		}
		fmt.Fprintf(&b, "%T", a)
	}
	return b.String()
}

type statementKey struct {
	sql         string
	fingerprint string
}

// StatementCache is a bounded LRU of compiled statements scoped to a
// single connection. Its default capacity is 32; entries are never
// shared across connections and are evicted by closing the underlying
// engine handle.
type StatementCache struct {
	db    *sql.DB
	inner *lru.Cache[statementKey, *sql.Stmt]
}

// NewStatementCache builds a cache bound to db with the given
// capacity. size <= 0 yields a cache of the default size (32).
func NewStatementCache(db *sql.DB, size int) (*StatementCache, error) {
	if size <= 0 {
		size = 32
	}
	sc := &StatementCache{db: db}
	inner, err := lru.NewWithEvict(size, sc.onEvict)
	if err != nil {
		return nil, err
	}
	sc.inner = inner
	return sc, nil
}

func (c *StatementCache) onEvict(_ statementKey, stmt *sql.Stmt) {
	stmt.Close()
}

// Get returns a compiled statement for (sql, fingerprint), preparing
// and inserting one on a miss.
func (c *StatementCache) Get(ctx context.Context, query, fingerprint string) (*sql.Stmt, error) {
	key := statementKey{sql: query, fingerprint: fingerprint}
	if stmt, ok := c.inner.Get(key); ok {
		return stmt, nil
	}
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.inner.Add(key, stmt)
	return stmt, nil
}

// Lookup returns the compiled statement cached for (sql, fingerprint),
// without preparing one on a miss. Used inside open transactions,
// where preparing through the connection-level handle would contend
// with the transaction for the single underlying connection.
func (c *StatementCache) Lookup(query, fingerprint string) (*sql.Stmt, bool) {
	return c.inner.Get(statementKey{sql: query, fingerprint: fingerprint})
}

// Len reports the number of statements currently cached.
func (c *StatementCache) Len() int {
	return c.inner.Len()
}

// Close evicts and closes every cached statement. Called when the
// owning connection is destroyed.
func (c *StatementCache) Close() {
	c.inner.Purge()
}
