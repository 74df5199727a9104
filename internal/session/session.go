// Package session implements the execute/all/stream/transaction
// surface over a single checked-out connection: it runs SQL through
// the translation cache, encodes/decodes parameters and result rows
// via internal/codec, and drives BEGIN/COMMIT/ROLLBACK with
// savepoint-based nested transactions.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lychee-technology/duckpg/internal/codec"
	"github.com/lychee-technology/duckpg/internal/dialect"
	"github.com/lychee-technology/duckpg/internal/translate"
)

// DB is the minimal database/sql-shaped seam a Session runs
// statements through. *sql.DB and *sql.Tx both satisfy it, which is
// how Transaction swaps the live executor out from under Execute/
// All/Stream without those methods knowing a transaction is open.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// beginner is implemented by *sql.DB; Session.Transaction needs it
// directly (rather than through DB) because opening a transaction
// isn't part of the DB seam.
type beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// txState is shared by every Session value participating in the same
// top-level transaction (the top-level Session and every nested
// invocation reuse the same pointer), so a savepoint-capability
// discovery failure or a dirty mark is visible everywhere at once.
type txState struct {
	tx           *sql.Tx
	rollbackOnly bool
	savepointNum int
}

// Session executes statements over a single connection. It is not
// safe for concurrent use by multiple goroutines: statements within
// one session execute in submission order.
type Session struct {
	db         DB
	rawDB      beginner
	stmts      *codec.StatementCache
	dialect    *dialect.State
	translator *translate.Cache
	logger     Logger

	txn   *txState
	dirty bool
}

// New builds a Session over db. stmts may be nil (prepared-statement
// caching disabled). translator may be nil (translation disabled,
// e.g. for a caller that pre-translates SQL itself).
func New(db *sql.DB, stmts *codec.StatementCache, dlg *dialect.State, translator *translate.Cache, logger Logger) *Session {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Session{db: db, rawDB: db, stmts: stmts, dialect: dlg, translator: translator, logger: logger}
}

// Dirty reports whether this session's connection was marked unusable
// (a cancelled execute the engine couldn't abort mid-statement, or a
// savepoint-capability probe failure). The pool should destroy rather
// than recycle the underlying connection on release.
func (s *Session) Dirty() bool {
	if s.dirty {
		return true
	}
	return s.txn != nil && s.txn.rollbackOnly
}

// MarkDirty flags the session's connection as unusable for reuse.
func (s *Session) MarkDirty() { s.dirty = true }

// Execute runs a statement that does not return rows.
func (s *Session) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	rewritten, encoded, err := s.prepare(query, args)
	start := time.Now()
	if err != nil {
		s.log(rewritten, args, start, err)
		return nil, err
	}

	res, err := s.execWith(ctx, rewritten, encoded)
	s.log(rewritten, args, start, err)
	if err != nil {
		if ctx.Err() != nil {
			s.MarkDirty()
		}
		return nil, fmt.Errorf("session: execute: %w", err)
	}
	return res, nil
}

// Row is one decoded result row, keyed by column name.
type Row = map[string]any

// All runs a query and decodes every result row. modes maps a column
// name to its expected decode shape; columns absent from modes decode
// as whatever database/sql natively scans them as.
func (s *Session) All(ctx context.Context, query string, modes map[string]codec.DecodeMode, args ...any) ([]Row, error) {
	rewritten, encoded, err := s.prepare(query, args)
	start := time.Now()
	if err != nil {
		s.log(rewritten, args, start, err)
		return nil, err
	}

	rows, err := s.queryWith(ctx, rewritten, encoded)
	if err != nil {
		s.log(rewritten, args, start, err)
		if ctx.Err() != nil {
			s.MarkDirty()
		}
		return nil, fmt.Errorf("session: query: %w", err)
	}
	defer rows.Close()

	out, err := decodeRows(rows, modes)
	s.log(rewritten, args, start, err)
	return out, err
}

// prepare translates query, resets the per-statement dialect flag,
// and encodes args, returning a DisallowedColumnError (never touching
// the engine) the moment a bound value is tagged PostgreSQL JSON/JSONB.
func (s *Session) prepare(query string, args []any) (string, []any, error) {
	if s.txn != nil && s.txn.rollbackOnly {
		return query, nil, ErrSessionDirty
	}

	rewritten := query
	if s.translator != nil {
		rewritten, _ = s.translator.Translate(query)
	}

	unlock := s.dialect.BeginPrepare()
	encoded, encErr := codec.EncodeAll(args)
	if dc, ok := asDisallowed(encErr); ok {
		s.dialect.FlagDisallowedColumn(dc.Column)
	}
	flagged := s.dialect.DisallowedColumn()
	unlock()

	if flagged != "" {
		return rewritten, nil, &codec.DisallowedColumnError{Column: flagged}
	}
	if encErr != nil {
		return rewritten, nil, encErr
	}
	return rewritten, encoded, nil
}

func asDisallowed(err error) (*codec.DisallowedColumnError, bool) {
	dc, ok := err.(*codec.DisallowedColumnError)
	return dc, ok
}

// cachedStmt resolves a compiled statement for (query, args) if the
// prepared-statement cache can serve one. Outside a transaction a miss
// compiles and caches; inside one, only cache hits are used (rebound
// into the transaction via Tx.StmtContext), since compiling through
// the connection-level handle would contend with the open transaction
// for the single underlying connection. The returned cleanup closes
// the transaction-scoped rebind and is non-nil whenever stmt is.
func (s *Session) cachedStmt(ctx context.Context, query string, args []any) (*sql.Stmt, func()) {
	if s.stmts == nil {
		return nil, nil
	}
	if s.txn != nil {
		stmt, ok := s.stmts.Lookup(query, codec.Fingerprint(args))
		if !ok {
			return nil, nil
		}
		bound := s.txn.tx.StmtContext(ctx, stmt)
		return bound, func() { bound.Close() }
	}
	stmt, err := s.stmts.Get(ctx, query, codec.Fingerprint(args))
	if err != nil {
		return nil, nil
	}
	return stmt, func() {}
}

func (s *Session) execWith(ctx context.Context, query string, args []any) (sql.Result, error) {
	if stmt, done := s.cachedStmt(ctx, query, args); stmt != nil {
		defer done()
		return stmt.ExecContext(ctx, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Session) queryWith(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	if stmt, done := s.cachedStmt(ctx, query, args); stmt != nil {
		// database/sql defers the statement close until the returned
		// rows are drained, so closing here is safe.
		defer done()
		return stmt.QueryContext(ctx, args...)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func decodeRows(rows *sql.Rows, modes map[string]codec.DecodeMode) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows, cols, modes)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRow(rows *sql.Rows, cols []string, modes map[string]codec.DecodeMode) (Row, error) {
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(Row, len(cols))
	for i, name := range cols {
		mode, ok := modes[name]
		if !ok {
			row[name] = raw[i]
			continue
		}
		decoded, err := codec.Decode(raw[i], mode)
		if err != nil {
			return nil, fmt.Errorf("session: decode column %q: %w", name, err)
		}
		row[name] = decoded
	}
	return row, nil
}

func (s *Session) log(sqlText string, args []any, start time.Time, err error) {
	s.logger.LogQuery(QueryEvent{
		CorrelationID: uuid.NewString(),
		SQL:           sqlText,
		Args:          args,
		Duration:      time.Since(start),
		Err:           err,
	})
}
