package session

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/duckpg/internal/codec"
	"github.com/lychee-technology/duckpg/internal/dialect"
)

func newTestSession(t *testing.T) (*Session, *sql.DB) {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil, dialect.New(), nil, nil), db
}

func TestSession_ExecuteAndAll(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE widgets (id INTEGER, name VARCHAR)")
	require.NoError(t, err)

	_, err = s.Execute(ctx, "INSERT INTO widgets VALUES (?, ?)", 1, "sprocket")
	require.NoError(t, err)

	rows, err := s.All(ctx, "SELECT id, name FROM widgets ORDER BY id", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, "sprocket", rows[0]["name"])
}

func TestSession_DisallowedColumnNeverReachesEngine(t *testing.T) {
	s, db := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE docs (id INTEGER, payload VARCHAR)")
	require.NoError(t, err)

	_, err = s.Execute(ctx, "INSERT INTO docs VALUES (?, ?)", 1, codec.PGJSON("payload"))
	require.Error(t, err)
	var dc *codec.DisallowedColumnError
	require.ErrorAs(t, err, &dc)
	assert.Equal(t, "payload", dc.Column)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM docs").Scan(&count))
	assert.Equal(t, 0, count, "the engine must never have been called")
}

func TestSession_TopLevelTransactionCommits(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	err = s.Transaction(ctx, func(tx *Session) error {
		_, err := tx.Execute(ctx, "INSERT INTO t VALUES (1)")
		return err
	})
	require.NoError(t, err)

	rows, err := s.All(ctx, "SELECT id FROM t", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSession_TopLevelTransactionRollsBackOnError(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	sentinel := assert.AnError
	err = s.Transaction(ctx, func(tx *Session) error {
		if _, err := tx.Execute(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	rows, err := s.All(ctx, "SELECT id FROM t", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// TestSession_NestedTransactionFailureAbortsOuter: whether this
// engine supports SAVEPOINT or not, the nested error must propagate
// up and abort the outer transaction: if
// savepoints work, the nested insert is undone and the outer body's
// returned error still rolls everything back; if they don't, the
// nested Transaction call itself fails before ever inserting id=2,
// and that failure is what the outer body propagates.
func TestSession_NestedTransactionFailureAbortsOuter(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	err = s.Transaction(ctx, func(tx *Session) error {
		if _, err := tx.Execute(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		return tx.Transaction(ctx, func(nested *Session) error {
			if _, err := nested.Execute(ctx, "INSERT INTO t VALUES (2)"); err != nil {
				return err
			}
			return assert.AnError
		})
	})
	require.Error(t, err)

	rows, err := s.All(ctx, "SELECT id FROM t", nil)
	require.NoError(t, err)
	assert.Empty(t, rows, "outer transaction must be fully rolled back")
}

func TestSession_NestedTransactionRejectedOnceCapabilityIsNo(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	s.dialect.SetSavepoints(dialect.CapabilityNo)

	err := s.Transaction(ctx, func(tx *Session) error {
		return tx.Transaction(ctx, func(*Session) error { return nil })
	})
	require.ErrorIs(t, err, ErrNestedTransactionUnsupported)
}

func TestSession_StreamBatches(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE nums (n INTEGER)")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.Execute(ctx, "INSERT INTO nums VALUES (?)", i)
		require.NoError(t, err)
	}

	stream, err := s.Stream(ctx, "SELECT n FROM nums ORDER BY n", 2, nil)
	require.NoError(t, err)

	var total int
	for {
		batch, ok, err := stream.Next()
		require.NoError(t, err)
		total += len(batch)
		if !ok {
			break
		}
	}
	assert.Equal(t, 5, total)
	require.NoError(t, stream.Close())
}

func TestSession_StreamAbandonedMidwayCloses(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE nums (n INTEGER)")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := s.Execute(ctx, "INSERT INTO nums VALUES (?)", i)
		require.NoError(t, err)
	}

	stream, err := s.Stream(ctx, "SELECT n FROM nums ORDER BY n", 3, nil)
	require.NoError(t, err)

	_, ok, err := stream.Next()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close(), "Close must be idempotent")
}
