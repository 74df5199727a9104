package duckpg

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/lychee-technology/duckpg/factory"
	"github.com/lychee-technology/duckpg/internal/codec"
	"github.com/lychee-technology/duckpg/internal/dialect"
	"github.com/lychee-technology/duckpg/internal/pool"
	"github.com/lychee-technology/duckpg/internal/session"
	"github.com/lychee-technology/duckpg/internal/translate"
)

// translationCacheSize bounds the rewritten-SQL cache shared by every
// connection this driver hands out.
const translationCacheSize = 512

// Driver is one attached adapter instance: a connection pool plus the
// single dialect-state and translation-cache it shares across every
// checked-out connection.
type Driver struct {
	pool       *pool.Pool
	dialect    *dialect.State
	translator *translate.Cache
	logger     Logger
	cfg        *Config
}

// Attach opens a driver instance per cfg (nil means DefaultConfig()).
func Attach(cfg *Config) (*Driver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	translator, err := translate.NewCache(translationCacheSize, arrayModeFor(cfg.RewriteArrays))
	if err != nil {
		return nil, NewConfigError("failed to build translation cache").WithCause(err)
	}

	var zlog *zap.Logger
	if zl, ok := cfg.Logger.(*ZapLogger); ok {
		zlog = zl.log
	}

	fcfg := factory.Config{
		Path:                cfg.Path,
		MotherDuckToken:     cfg.MotherDuckToken,
		Extensions:          cfg.Extensions,
		EnableS3:            cfg.EnableS3,
		S3Region:            cfg.S3Region,
		S3Endpoint:          cfg.S3Endpoint,
		S3AccessKey:         cfg.S3AccessKey,
		S3SecretKey:         cfg.S3SecretKey,
		PrepareCacheEnabled: cfg.PrepareCache.Enabled,
		PrepareCacheSize:    cfg.PrepareCache.Size,
		Logger:              zlog,
	}

	p := pool.New(pool.Config{
		Size:           cfg.Pool.Size,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		MaxLifetime:    cfg.Pool.MaxLifetime,
		IdleTimeout:    cfg.Pool.IdleTimeout,
	}, factory.New(fcfg))

	return &Driver{
		pool:       p,
		dialect:    dialect.New(),
		translator: translator,
		logger:     cfg.Logger,
		cfg:        cfg,
	}, nil
}

// Close drains and destroys every connection this driver holds.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

// Stats reports point-in-time pool occupancy.
func (d *Driver) Stats() pool.Stats {
	return d.pool.Stats()
}

// Conn is one checked-out, ready-to-use connection. Callers must call
// Close exactly once to return it to the pool.
type Conn struct {
	driver  *Driver
	raw     *pool.Conn
	session *session.Session
	closed  bool
}

// Acquire checks out a connection, waiting FIFO for one if the pool is
// at capacity.
func (d *Driver) Acquire(ctx context.Context) (*Conn, error) {
	raw, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, translatePoolErr(err)
	}
	fc := raw.Raw.(*factory.Conn)
	sess := session.New(fc.DB, fc.Stmts, d.dialect, d.translator, d.logger)
	return &Conn{driver: d, raw: raw, session: sess}, nil
}

// Close releases the connection back to the pool, destroying it
// instead of recycling it if the session was marked dirty.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.driver.pool.Release(c.raw, c.session.Dirty())
	return nil
}

// Execute runs a statement that returns no rows.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.session.Execute(ctx, query, args...)
	if err != nil {
		return nil, translateSessionErr(err, query)
	}
	return res, nil
}

// Row is one decoded result row keyed by column name.
type Row = session.Row

// All runs a query and decodes every result row.
func (c *Conn) All(ctx context.Context, query string, modes map[string]codec.DecodeMode, args ...any) ([]Row, error) {
	rows, err := c.session.All(ctx, query, modes, args...)
	if err != nil {
		return nil, translateSessionErr(err, query)
	}
	return rows, nil
}

// BatchStream yields decoded rows in fixed-size batches.
type BatchStream = session.BatchStream

// Stream opens a row-batch cursor over query.
func (c *Conn) Stream(ctx context.Context, query string, batchSize int, modes map[string]codec.DecodeMode, args ...any) (*BatchStream, error) {
	stream, err := c.session.Stream(ctx, query, batchSize, modes, args...)
	if err != nil {
		return nil, translateSessionErr(err, query)
	}
	return stream, nil
}

// ColumnStream yields raw per-column buffers batch by batch.
type ColumnStream = session.ColumnStream

// StreamColumns opens a raw columnar cursor over query.
func (c *Conn) StreamColumns(ctx context.Context, query string, batchSize int, args ...any) (*ColumnStream, error) {
	stream, err := c.session.StreamColumns(ctx, query, batchSize, args...)
	if err != nil {
		return nil, translateSessionErr(err, query)
	}
	return stream, nil
}

// Tx is the session handle a Transaction body receives; it exposes the
// same Execute/All/Stream surface as Conn, scoped to the open
// transaction (or nested savepoint).
type Tx = session.Session

// Transaction runs body under BEGIN...COMMIT, serving nested
// Transaction calls made inside body through SAVEPOINTs.
func (c *Conn) Transaction(ctx context.Context, body func(*Tx) error) error {
	err := c.session.Transaction(ctx, func(tx *session.Session) error {
		return body(tx)
	})
	if err != nil {
		return translateSessionErr(err, "")
	}
	return nil
}

func arrayModeFor(mode RewriteMode) translate.ArrayMode {
	switch mode {
	case RewriteAlways:
		return translate.ArrayAlways
	case RewriteNever:
		return translate.ArrayNever
	default:
		return translate.ArrayAuto
	}
}

func translatePoolErr(err error) error {
	switch {
	case errors.Is(err, pool.ErrTimeout):
		return NewPoolTimeoutError()
	case errors.Is(err, pool.ErrClosed):
		return NewPoolClosedError()
	default:
		return NewConnectionError("failed to acquire connection", err)
	}
}

func translateSessionErr(err error, sqlText string) error {
	if err == nil {
		return nil
	}

	var dc *codec.DisallowedColumnError
	if errors.As(err, &dc) {
		return NewUnsupportedColumnError(dc.Column)
	}
	if errors.Is(err, session.ErrNestedTransactionUnsupported) {
		return NewNestedTransactionUnsupportedError(err)
	}
	if errors.Is(err, session.ErrSessionDirty) {
		return NewEngineError("connection is marked for rollback", sqlText, err)
	}

	var de *DriverError
	if errors.As(err, &de) {
		return de
	}

	return NewEngineError(err.Error(), sqlText, err)
}
