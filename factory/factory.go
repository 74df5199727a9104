// Package factory builds ready-to-use DuckDB connections: opening the
// engine handle (local file, in-memory, or MotherDuck), installing
// and loading extensions, and wiring S3 access.
package factory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/lychee-technology/duckpg/internal/codec"
	"github.com/lychee-technology/duckpg/internal/pool"
)

// Config carries everything New needs to open and configure one
// DuckDB connection. It mirrors the root package's Config fields the
// factory cares about, kept separate to avoid an import cycle (the
// root package builds a factory.Config from its own Config to call
// New).
type Config struct {
	Path            string
	MotherDuckToken string
	Extensions      []string

	EnableS3    bool
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	PrepareCacheEnabled bool
	PrepareCacheSize    int

	Logger *zap.Logger
}

// Conn is one DuckDB connection as held inside the connection pool: a
// database handle plus the per-connection prepared-statement cache. A
// compiled statement is valid only for the connection that compiled
// it, so the cache never migrates between connections. Dialect state
// lives one level up, shared by every connection of one driver
// instance, not per-connection.
type Conn struct {
	DB    *sql.DB
	Stmts *codec.StatementCache
}

// Close releases the statement cache and the underlying engine handle.
func (c *Conn) Close() error {
	if c.Stmts != nil {
		c.Stmts.Close()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// New returns a pool.Factory that opens connections per cfg. Every
// invocation opens an independent *sql.DB: DuckDB's single-process file
// locking model means pooling here means pooling engine handles, not
// multiplexing one handle's connections.
func New(cfg Config) pool.Factory {
	return func(ctx context.Context) (pool.Connection, error) {
		return open(ctx, cfg)
	}
}

func open(ctx context.Context, cfg Config) (*Conn, error) {
	dsn := dsnFor(cfg)

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("factory: open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("factory: ping duckdb: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, ext := range cfg.Extensions {
		installExtension(ctx, db, logger, ext)
	}

	if cfg.EnableS3 {
		if err := configureS3(ctx, db, cfg, logger); err != nil {
			logger.Warn("factory: s3 configuration failed", zap.Error(err))
		}
	}

	var stmts *codec.StatementCache
	if cfg.PrepareCacheEnabled {
		sc, err := codec.NewStatementCache(db, cfg.PrepareCacheSize)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("factory: build statement cache: %w", err)
		}
		stmts = sc
	}

	return &Conn{DB: db, Stmts: stmts}, nil
}

// dsnFor resolves the DSN DuckDB opens. An "md:" prefix selects the
// hosted MotherDuck variant; the token, when configured, is forwarded
// on the connection string. Anything else is a local path, with the
// empty path meaning an in-memory database.
func dsnFor(cfg Config) string {
	if strings.HasPrefix(cfg.Path, "md:") {
		if cfg.MotherDuckToken == "" || strings.Contains(cfg.Path, "motherduck_token=") {
			return cfg.Path
		}
		sep := "?"
		if strings.Contains(cfg.Path, "?") {
			sep = "&"
		}
		return cfg.Path + sep + "motherduck_token=" + cfg.MotherDuckToken
	}
	if cfg.Path == "" {
		return ":memory:"
	}
	return cfg.Path
}

func installExtension(ctx context.Context, db *sql.DB, logger *zap.Logger, ext string) {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s", ext)); err != nil {
		logger.Warn("factory: install extension failed", zap.String("extension", ext), zap.Error(err))
		return
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("LOAD %s", ext)); err != nil {
		logger.Warn("factory: load extension failed", zap.String("extension", ext), zap.Error(err))
	}
}

// configureS3 loads httpfs and sets the S3 PRAGMA parameters, falling
// back to the AWS SDK's default credential chain when an access key
// wasn't supplied explicitly.
func configureS3(ctx context.Context, db *sql.DB, cfg Config, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, "INSTALL httpfs"); err != nil {
		return fmt.Errorf("install httpfs: %w", err)
	}
	if _, err := db.ExecContext(ctx, "LOAD httpfs"); err != nil {
		return fmt.Errorf("load httpfs: %w", err)
	}

	resolved, err := resolveCredentials(ctx, cfg)
	if err != nil {
		logger.Warn("factory: AWS credential resolution unavailable", zap.Error(err))
	}
	accessKey, secretKey, sessionToken, region := resolved.AccessKeyID, resolved.SecretAccessKey, resolved.SessionToken, resolved.region
	if region == "" {
		region = cfg.S3Region
	}

	pragmas := map[string]string{
		"s3_access_key_id":     accessKey,
		"s3_secret_access_key": secretKey,
		"s3_session_token":     sessionToken,
		"s3_region":            region,
		"s3_endpoint":          cfg.S3Endpoint,
	}
	for name, value := range pragmas {
		if value == "" {
			continue
		}
		stmt := fmt.Sprintf("SET %s='%s'", name, escapeSingleQuotes(value))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Warn("factory: set s3 pragma failed", zap.String("pragma", name), zap.Error(err))
		}
	}
	return nil
}

type resolvedCredentials struct {
	aws.Credentials
	region string
}

// resolveCredentials returns explicit S3AccessKey/S3SecretKey wrapped
// as a static provider when given, otherwise the AWS SDK's default
// credential chain (environment, shared config, EC2/ECS role, SSO).
func resolveCredentials(ctx context.Context, cfg Config) (resolvedCredentials, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return resolvedCredentials{}, fmt.Errorf("load aws config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return resolvedCredentials{}, fmt.Errorf("retrieve aws credentials: %w", err)
	}
	return resolvedCredentials{Credentials: creds, region: awsCfg.Region}, nil
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
