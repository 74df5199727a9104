package duckpg

import (
	"go.uber.org/zap"
)

// ZapLogger adapts a *zap.Logger to the Logger seam, emitting one
// structured log line per executed query.
type ZapLogger struct {
	log *zap.Logger
}

// NewZapLogger wraps log. A nil log falls back to zap.NewNop(), so a
// caller never needs to nil-check before constructing this.
func NewZapLogger(log *zap.Logger) *ZapLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapLogger{log: log}
}

// LogQuery implements Logger.
func (z *ZapLogger) LogQuery(event QueryEvent) {
	fields := []zap.Field{
		zap.String("correlation_id", event.CorrelationID),
		zap.String("sql", event.SQL),
		zap.Duration("duration", event.Duration),
	}
	if len(event.Args) > 0 {
		fields = append(fields, zap.Int("arg_count", len(event.Args)))
	}
	if event.Err != nil {
		fields = append(fields, zap.Error(event.Err))
		z.log.Warn("duckpg: query failed", fields...)
		return
	}
	z.log.Debug("duckpg: query executed", fields...)
}
