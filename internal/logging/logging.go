// Package logging provides the structured logger shared by every component
// of the plugin host.
package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	global   *zap.Logger
	globalMu sync.RWMutex
)

func init() {
	global, _ = zap.NewProduction()
}

// Config describes how to build a logger for the host process.
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	Output     string // "stdout", "stderr", or a file path
	MaxSizeMB  int    // rotation threshold in megabytes
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds a zap logger from cfg. When Output names a file the returned
// io.Closer must be closed on shutdown to flush the rotation writer; for
// stdout/stderr the closer is nil.
func New(cfg Config) (*zap.Logger, io.Closer, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	var sink zapcore.WriteSyncer
	var closer io.Closer
	switch cfg.Output {
	case "", "stdout":
		sink = zapcore.AddSync(os.Stdout)
	case "stderr":
		sink = zapcore.AddSync(os.Stderr)
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		sink = zapcore.AddSync(lj)
		closer = lj
	}

	core := zapcore.NewCore(encoder, sink, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return logger, closer, nil
}

// Global returns the process-wide logger.
func Global() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// SetGlobal replaces the process-wide logger, used once at startup after
// the bootstrap config has been loaded.
func SetGlobal(l *zap.Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// ForPlugin returns a child logger tagged with the plugin's id, used by
// every component that acts on behalf of a specific guest.
func ForPlugin(pluginID string) *zap.Logger {
	return Global().With(zap.String("plugin_id", pluginID))
}

func Info(msg string, fields ...zap.Field)  { Global().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Global().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Global().Error(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { Global().Debug(msg, fields...) }
