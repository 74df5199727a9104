package duckpg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttach_InMemoryRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	drv, err := Attach(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })

	ctx := context.Background()
	conn, err := drv.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Execute(ctx, "CREATE TABLE t (id INTEGER, name VARCHAR)")
	require.NoError(t, err)

	_, err = conn.Execute(ctx, "INSERT INTO t VALUES (?, ?)", 1, "a")
	require.NoError(t, err)

	rows, err := conn.All(ctx, "SELECT id, name FROM t", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["id"])
}

func TestAttach_TransactionCommitsAndRollsBack(t *testing.T) {
	drv, err := Attach(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })

	ctx := context.Background()
	conn, err := drv.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Execute(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	err = conn.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Execute(ctx, "INSERT INTO t VALUES (1)")
		return err
	})
	require.NoError(t, err)

	err = conn.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.Execute(ctx, "INSERT INTO t VALUES (2)"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	rows, err := conn.All(ctx, "SELECT id FROM t ORDER BY id", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["id"])
}

func TestAttach_PoolStatsReflectAcquire(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pool.Size = 2
	drv, err := Attach(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })

	ctx := context.Background()
	conn, err := drv.Acquire(ctx)
	require.NoError(t, err)

	stats := drv.Stats()
	assert.Equal(t, 1, stats.InUse)

	require.NoError(t, conn.Close())
	stats = drv.Stats()
	assert.Equal(t, 0, stats.InUse)
}

func TestAttach_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = ""
	_, err := Attach(cfg)
	require.Error(t, err)
	assert.True(t, IsEngineError(err) == false)
}
