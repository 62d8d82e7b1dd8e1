package trace

import (
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// SetupLogger installs a zap-backed slog default logger writing JSON to w.
// Stdout belongs to the event protocol, so callers pass stderr.
// The returned function flushes buffered entries.
func SetupLogger(level string, w io.Writer) (*slog.Logger, func()) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		parseLevel(level),
	)
	zl := zap.New(core)

	logger := slog.New(zapslog.NewHandler(core, zapslog.WithName("wakeword")))
	slog.SetDefault(logger)
	return logger, func() { _ = zl.Sync() }
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
