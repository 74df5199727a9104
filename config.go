package duckpg

import (
	"strings"
	"time"

	"github.com/lychee-technology/duckpg/internal/session"
)

// RewriteMode gates the array-operator-lowering stage of the AST
// pipeline.
type RewriteMode string

const (
	RewriteAuto   RewriteMode = "auto"
	RewriteAlways RewriteMode = "always"
	RewriteNever  RewriteMode = "never"
)

// poolPresetStandardSize is the size behind the "standard" pool preset.
const poolPresetStandardSize = 6

// PoolConfig configures the connection pool.
type PoolConfig struct {
	Size           int           `json:"size"`
	AcquireTimeout time.Duration `json:"acquireTimeoutMs"`
	MaxLifetime    time.Duration `json:"maxLifetimeMs"`
	IdleTimeout    time.Duration `json:"idleTimeoutMs"`
}

// PrepareCacheConfig configures the per-connection prepared-statement
// cache. Enabled false disables caching; size 0 falls back to the
// default capacity.
type PrepareCacheConfig struct {
	Enabled bool `json:"enabled"`
	Size    int  `json:"size"`
}

const defaultPrepareCacheSize = 32

// QueryEvent is the single log event emitted per Execute or All call
// (streamed queries emit none):
// rewritten SQL, bound parameters, and timing, tagged with a
// correlation id. It is internal/session's type
// re-exported here so callers never need to import an internal
// package to implement Logger.
type QueryEvent = session.QueryEvent

// Logger is the sink external callers may supply via Config.Logger.
// The zero value (nil) means logging is disabled; Attach installs a
// NopLogger in that case so callers in this package never nil-check.
type Logger = session.Logger

// NopLogger discards every event.
type NopLogger = session.NopLogger

// Config is the set of attach options an application passes to open a
// driver instance.
type Config struct {
	// Path is the engine location: ":memory:", a file path, or an
	// "md:" prefixed MotherDuck database name.
	Path string `json:"path"`

	// MotherDuckToken is forwarded verbatim to the hosted engine when
	// Path begins with "md:".
	MotherDuckToken string `json:"motherduckToken"`

	// Extensions are DuckDB extensions to INSTALL/LOAD at attach time
	// (e.g. "httpfs", "parquet").
	Extensions []string `json:"extensions"`

	// EnableS3 loads httpfs and configures S3 PRAGMA settings, falling
	// back to the default AWS credential chain when explicit keys are
	// not supplied.
	EnableS3    bool   `json:"enableS3"`
	S3Region    string `json:"s3Region"`
	S3Endpoint  string `json:"s3Endpoint"`
	S3AccessKey string `json:"s3AccessKey"`
	S3SecretKey string `json:"s3SecretKey"`

	Pool          PoolConfig         `json:"pool"`
	RewriteArrays RewriteMode        `json:"rewriteArrays"`
	PrepareCache  PrepareCacheConfig `json:"prepareCache"`
	Logger        Logger             `json:"-"`
}

// DefaultConfig returns the default attach configuration: an
// in-memory database, a 6-connection "standard" pool, auto array
// rewriting, and a 32-entry prepared statement cache.
func DefaultConfig() *Config {
	return &Config{
		Path: ":memory:",
		Pool: PoolConfig{
			Size:           poolPresetStandardSize,
			AcquireTimeout: 30 * time.Second,
		},
		RewriteArrays: RewriteAuto,
		PrepareCache: PrepareCacheConfig{
			Enabled: true,
			Size:    defaultPrepareCacheSize,
		},
		Logger: NopLogger{},
	}
}

// ApplyPoolPreset resolves a named pool preset ("standard") to a size.
// Unknown presets are left for Validate to reject.
func ApplyPoolPreset(name string) (PoolConfig, bool) {
	if strings.EqualFold(name, "standard") {
		return PoolConfig{Size: poolPresetStandardSize}, true
	}
	return PoolConfig{}, false
}

// Validate checks the configuration for internal consistency,
// returning a ConfigError describing the first problem found.
func (c *Config) Validate() error {
	if c.Path == "" {
		return NewConfigError("path must not be empty")
	}
	if c.Pool.Size <= 0 {
		return NewConfigError("pool.size must be greater than 0")
	}
	switch c.RewriteArrays {
	case RewriteAuto, RewriteAlways, RewriteNever, "":
	default:
		return NewConfigError("rewriteArrays must be one of auto, always, never")
	}
	if c.PrepareCache.Enabled && c.PrepareCache.Size < 0 {
		return NewConfigError("prepareCache.size must not be negative")
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.PrepareCache.Enabled && c.PrepareCache.Size == 0 {
		c.PrepareCache.Size = defaultPrepareCacheSize
	}
	return nil
}

// IsMotherDuck reports whether Path addresses the hosted MotherDuck variant.
func (c *Config) IsMotherDuck() bool {
	return strings.HasPrefix(c.Path, "md:")
}

// IsInMemory reports whether Path addresses an ephemeral in-process database.
func (c *Config) IsInMemory() bool {
	return c.Path == "" || c.Path == ":memory:"
}
