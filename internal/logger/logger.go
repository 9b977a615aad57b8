package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger, set by Init. Packages receive their own
// *zap.Logger through constructors; only cmd wiring reads Log.
var Log = zap.NewNop()

// Init builds the process logger from the configured level and encoding.
func Init(level, encoding string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zap.InfoLevel
	}
	if encoding != "console" {
		encoding = "json"
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(lvl),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    enc,
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// Named returns a child of Log for one component.
func Named(component string) *zap.Logger {
	return Log.Named(component)
}
