package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNFor(t *testing.T) {
	assert.Equal(t, ":memory:", dsnFor(Config{}))
	assert.Equal(t, "/tmp/x.duckdb", dsnFor(Config{Path: "/tmp/x.duckdb"}))
	assert.Equal(t, "md:analytics", dsnFor(Config{Path: "md:analytics"}))
	assert.Equal(t, "md:analytics?motherduck_token=tok", dsnFor(Config{MotherDuckToken: "tok", Path: "md:analytics"}))
	assert.Equal(t, "md:analytics?motherduck_token=tok", dsnFor(Config{MotherDuckToken: "tok", Path: "md:analytics?motherduck_token=tok"}))
	assert.Equal(t, "md:analytics?saas_mode=true&motherduck_token=tok", dsnFor(Config{MotherDuckToken: "tok", Path: "md:analytics?saas_mode=true"}))
}

func TestEscapeSingleQuotes(t *testing.T) {
	assert.Equal(t, "o''brien", escapeSingleQuotes("o'brien"))
	assert.Equal(t, "plain", escapeSingleQuotes("plain"))
}

func TestOpen_InMemoryWithPreparedCache(t *testing.T) {
	conn, err := open(context.Background(), Config{PrepareCacheEnabled: true, PrepareCacheSize: 4})
	require.NoError(t, err)
	require.NotNil(t, conn.DB)
	require.NotNil(t, conn.Stmts)

	_, err = conn.DB.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	require.NoError(t, conn.Close())
}

func TestOpen_NoPreparedCacheWhenDisabled(t *testing.T) {
	conn, err := open(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, conn.Stmts)
	require.NoError(t, conn.Close())
}

func TestNew_ProducesWorkingFactory(t *testing.T) {
	f := New(Config{})
	c, err := f(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
