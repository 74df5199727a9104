package migrate

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"
)

func writeJournalFixture(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "meta"), 0o755))

	journal := `{
		"version": "7",
		"dialect": "postgresql",
		"entries": [
			{"idx": 0, "when": 1000, "tag": "0000_init"},
			{"idx": 1, "when": 2000, "tag": "0001_add_widgets"}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta", "_journal.json"), []byte(journal), 0o644))

	init := "CREATE TABLE accounts (id INTEGER);\n-- statement-breakpoint\nCREATE TABLE orders (id INTEGER);\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000_init.sql"), []byte(init), 0o644))

	widgets := "CREATE TABLE widgets (id INTEGER);\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_add_widgets.sql"), []byte(widgets), 0o644))
}

func TestLoadJournal(t *testing.T) {
	dir := t.TempDir()
	writeJournalFixture(t, dir)

	migrations, err := LoadJournal(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	require.Len(t, migrations[0].Statements, 2)
	require.Equal(t, int64(1000), migrations[0].FolderMillis)
	require.NotEmpty(t, migrations[0].Hash)

	require.Len(t, migrations[1].Statements, 1)
	require.Equal(t, int64(2000), migrations[1].FolderMillis)
}

func TestLoadJournal_RejectsMalformedJournal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "meta"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta", "_journal.json"), []byte(`{"entries": [{"idx": 0}]}`), 0o644))

	_, err := LoadJournal(dir)
	require.Error(t, err)
}

func TestMigrate_AppliesOnceAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeJournalFixture(t, dir)
	migrations, err := LoadJournal(dir)
	require.NoError(t, err)

	db, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	cfg := DefaultConfig()

	require.NoError(t, Migrate(ctx, db, migrations, cfg))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM "+cfg.qualifiedTable()).Scan(&count))
	require.Equal(t, 2, count)

	for _, table := range []string{"accounts", "orders", "widgets"} {
		_, err := db.ExecContext(ctx, "SELECT count(*) FROM "+table)
		require.NoError(t, err, "table %s should exist", table)
	}

	require.NoError(t, Migrate(ctx, db, migrations, cfg))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM "+cfg.qualifiedTable()).Scan(&count))
	require.Equal(t, 2, count, "re-running migrate must not reapply anything")
}

func TestMigrate_FailureRollsBackWholeBatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "meta"), 0o755))
	journal := `{"entries": [
		{"idx": 0, "when": 100, "tag": "0000_good"},
		{"idx": 1, "when": 200, "tag": "0001_bad"}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta", "_journal.json"), []byte(journal), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000_good.sql"), []byte("CREATE TABLE good_table (id INTEGER);\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_bad.sql"), []byte("THIS IS NOT VALID SQL;\n"), 0o644))

	migrations, err := LoadJournal(dir)
	require.NoError(t, err)

	db, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	cfg := DefaultConfig()
	require.Error(t, Migrate(ctx, db, migrations, cfg))

	_, tableErr := db.ExecContext(ctx, "SELECT count(*) FROM good_table")
	require.Error(t, tableErr, "the earlier migration of the failed batch must have been rolled back too")

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM "+cfg.qualifiedTable()).Scan(&count))
	require.Equal(t, 0, count)
}

func TestMigrate_PartialMigrationIsAtomic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "meta"), 0o755))
	journal := `{"entries": [{"idx": 0, "when": 500, "tag": "0000_bad"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta", "_journal.json"), []byte(journal), 0o644))
	bad := "CREATE TABLE ok_table (id INTEGER);\n-- statement-breakpoint\nTHIS IS NOT VALID SQL;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000_bad.sql"), []byte(bad), 0o644))

	migrations, err := LoadJournal(dir)
	require.NoError(t, err)

	db, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	err = Migrate(ctx, db, migrations, DefaultConfig())
	require.Error(t, err)

	_, tableErr := db.ExecContext(ctx, "SELECT count(*) FROM ok_table")
	require.Error(t, tableErr, "the first statement must have been rolled back with the rest")
}
