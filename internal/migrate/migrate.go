package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is the minimal seam Migrate runs DDL/DML through. *sql.DB and
// *sql.Tx both satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Config names the metadata objects Migrate uses to track progress.
type Config struct {
	Schema string
	Table  string

	// LegacySequence, when non-empty, is also created in Schema
	// alongside the primary id sequence, for deployments that still
	// reference the old sequence name directly. Only the primary
	// sequence feeds the id column; the legacy one is not advanced.
	LegacySequence string
}

// DefaultConfig returns the drizzle-orm-compatible metadata naming.
func DefaultConfig() Config {
	return Config{
		Schema:         "drizzle",
		Table:          "__drizzle_migrations",
		LegacySequence: "drizzle___drizzle_migrations_id_seq",
	}
}

func (c Config) sequenceName() string {
	return c.Schema + ".__drizzle_migrations_id_seq"
}

func (c Config) qualifiedTable() string {
	return c.Schema + "." + c.Table
}

// EnsureMetadata creates the schema, sequence(s), and tracking table if
// they don't already exist. It is idempotent and safe to call before
// every Migrate.
func EnsureMetadata(ctx context.Context, db Execer, cfg Config) error {
	statements := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", cfg.Schema),
		fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", cfg.sequenceName()),
	}
	if cfg.LegacySequence != "" {
		statements = append(statements, fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s.%s", cfg.Schema, cfg.LegacySequence))
	}
	statements = append(statements, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY DEFAULT nextval('%s'),
			hash TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`, cfg.qualifiedTable(), cfg.sequenceName()))

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: ensure metadata: %w", err)
		}
	}
	return nil
}

// Migrate applies every migration whose FolderMillis is newer than the
// highest created_at already recorded, in the order given. The whole
// batch runs inside one transaction: a failure anywhere rolls back
// every migration of this invocation. Running it twice against the
// same migrations applies nothing the second time.
func Migrate(ctx context.Context, db *sql.DB, migrations []Migration, cfg Config) error {
	if err := EnsureMetadata(ctx, db, cfg); err != nil {
		return err
	}

	watermark, err := latestAppliedMillis(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("migrate: read watermark: %w", err)
	}

	var pending []Migration
	for _, m := range migrations {
		if m.FolderMillis > watermark {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}

	for _, m := range pending {
		if err := applyOne(ctx, tx, cfg, m); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate: apply migration %s: %w", m.Hash, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

func latestAppliedMillis(ctx context.Context, db Execer, cfg Config) (int64, error) {
	var max sql.NullInt64
	row := db.QueryRowContext(ctx, fmt.Sprintf("SELECT max(created_at) FROM %s", cfg.qualifiedTable()))
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

func applyOne(ctx context.Context, tx *sql.Tx, cfg Config, m Migration) error {
	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s (hash, created_at) VALUES (?, ?)", cfg.qualifiedTable())
	if _, err := tx.ExecContext(ctx, insert, m.Hash, m.FolderMillis); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}
