package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	logger     *zap.SugaredLogger
	loggerOnce sync.Once
	atom       = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger builds the global zap logger writing JSON lines to stderr.
func initLogger() {
	loggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = atom
		cfg.Sampling = nil
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		cfg.DisableStacktrace = true

		z, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			z = zap.NewNop()
		}
		logger = z.Sugar()
	})
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		atom.SetLevel(zapcore.DebugLevel)
	case LevelError:
		atom.SetLevel(zapcore.ErrorLevel)
	default:
		atom.SetLevel(zapcore.InfoLevel)
	}
}

// ParseLevel maps a config/flag string onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	initLogger()
	logger.Debugw(msg, clean(kv)...)
}

func Info(msg string, kv ...any) {
	initLogger()
	logger.Infow(msg, clean(kv)...)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, clean(kv)...)
	logger.Errorw(msg, extended...)
}

// Use swaps the global logger for z and returns a func restoring the
// previous one. Tests use it to capture entries.
func Use(z *zap.Logger) (restore func()) {
	initLogger()
	prev := logger
	logger = z.WithOptions(zap.AddCallerSkip(1)).Sugar()
	return func() { logger = prev }
}

// Sync flushes buffered entries. Call before process exit.
func Sync() {
	initLogger()
	_ = logger.Sync()
}

// clean drops a trailing key without value and any pair whose key is not a
// string, so zap never reports "ignored key" errors.
func clean(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		if _, ok := kv[i].(string); !ok {
			continue
		}
		out = append(out, kv[i], kv[i+1])
	}
	return out
}
