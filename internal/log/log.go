// Package log provides the shell's diagnostic logger. Diagnostics never go
// to the terminal; the terminal belongs to the user's jobs. The logger is
// constructed once at startup and handed down to each component.
package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a Logger named name that writes console-encoded entries to w.
func New(w io.Writer, name string, debug bool) *Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)

	return &Logger{zap.New(core, zap.AddCaller()).Named(name).Sugar()}
}

// NewNop creates a Logger that discards all entries.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Logger logs shell diagnostics. Infof, Warnf, Errorf and friends are
// provided by the embedded SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}
