// Package logging builds the zap loggers used by every binary in the repository.
package logging

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a JSON zap logger stamped with the service and environment.
type Logger struct {
	*zap.Logger
	config Config
}

// New builds a Logger. It only fails when OutputPath cannot be opened.
func New(cfg Config) (*Logger, error) {
	cfg = cfg.withDefaults()

	out, err := cfg.writer()
	if err != nil {
		return nil, err
	}

	enc := zap.NewProductionEncoderConfig()
	if cfg.IsDevelopment() {
		enc = zap.NewDevelopmentEncoderConfig()
	}
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(out), parseLogLevel(cfg.LogLevel))
	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).With(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	)
	return &Logger{Logger: base, config: cfg}, nil
}

// MustNew is New for main packages.
func MustNew(cfg Config) *Logger {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Logger) Config() Config { return l.config }

// WithContext adds trace_id and span_id when ctx carries a valid span.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l.Logger
	}
	return l.Logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func (l *Logger) WithRequestID(requestID string) *zap.Logger {
	return l.Logger.With(zap.String("request_id", requestID))
}

func (l *Logger) WithTaskID(taskID int64) *zap.Logger {
	return l.Logger.With(zap.Int64("task_id", taskID))
}

var levels = map[string]zapcore.Level{
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

func parseLogLevel(level string) zapcore.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return lvl
	}
	return zapcore.InfoLevel
}
