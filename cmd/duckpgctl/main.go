// Command duckpgctl applies drizzle-style migration folders against a
// DuckDB database through the adapter's migration driver.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/lychee-technology/duckpg/internal/migrate"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		if err := runMigrate(os.Args[2:]); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: duckpgctl <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  migrate    apply a drizzle-style migration folder")
}

type migrateOptions struct {
	dbPath         string
	migrationsDir  string
	schema         string
	table          string
	legacySequence string
}

func runMigrate(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: duckpgctl migrate [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	defaults := migrate.DefaultConfig()
	opts := migrateOptions{}
	flags.StringVar(&opts.dbPath, "db", getenvDefault("DUCKPG_DB_PATH", ":memory:"), "database path (file path, :memory:, or md: share)")
	flags.StringVar(&opts.migrationsDir, "dir", getenvDefault("DUCKPG_MIGRATIONS_DIR", "./migrations"), "directory containing meta/_journal.json and migration SQL files")
	flags.StringVar(&opts.schema, "schema", getenvDefault("DUCKPG_MIGRATIONS_SCHEMA", defaults.Schema), "metadata schema name")
	flags.StringVar(&opts.table, "table", getenvDefault("DUCKPG_MIGRATIONS_TABLE", defaults.Table), "metadata table name")
	flags.StringVar(&opts.legacySequence, "legacy-sequence", getenvDefault("DUCKPG_LEGACY_SEQUENCE", defaults.LegacySequence), "legacy sequence name alias kept for compatibility")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return applyMigrations(opts)
}

func applyMigrations(opts migrateOptions) error {
	ctx := context.Background()

	migrations, err := migrate.LoadJournal(opts.migrationsDir)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	db, err := sql.Open("duckdb", opts.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cfg := migrate.Config{Schema: opts.schema, Table: opts.table, LegacySequence: opts.legacySequence}
	if err := migrate.Migrate(ctx, db, migrations, cfg); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	fmt.Printf("Applied migrations from %s (%d candidate migrations evaluated).\n", opts.migrationsDir, len(migrations))
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
