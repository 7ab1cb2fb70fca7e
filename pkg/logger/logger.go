// Package logger holds the process-global structured logger. Call Init once
// during startup; every other package logs through the package helpers.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger. It defaults to a no-op logger so library use
// without Init stays silent rather than panicking.
var Log = zap.NewNop()

// Init configures the global logger. level is one of debug|info|warn|error
// (empty falls back to HISTORYDB_LOG_LEVEL, then info); format is text|json
// (empty falls back to HISTORYDB_LOG_FORMAT, then text).
func Init(level, format string) error {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("HISTORYDB_LOG_LEVEL")))
	}
	var zl zapcore.Level
	switch lvl {
	case "debug":
		zl = zapcore.DebugLevel
	case "warn", "warning":
		zl = zapcore.WarnLevel
	case "error":
		zl = zapcore.ErrorLevel
	case "info", "":
		zl = zapcore.InfoLevel
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		f = strings.ToLower(strings.TrimSpace(os.Getenv("HISTORYDB_LOG_FORMAT")))
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch f {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "text", "console", "":
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zl)
	Log = zap.New(core)
	return nil
}

// Sync flushes buffered log entries. Errors from stdout sync are ignored.
func Sync() { _ = Log.Sync() }

// Debug logs at debug level with structured fields.
func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }

// Info logs at info level with structured fields.
func Info(msg string, fields ...zap.Field) { Log.Info(msg, fields...) }

// Warn logs at warn level with structured fields.
func Warn(msg string, fields ...zap.Field) { Log.Warn(msg, fields...) }

// Error logs at error level with structured fields.
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }
