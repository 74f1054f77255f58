// internal/logging/logging.go
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.SugaredLogger
	once   sync.Once

	// level is shared by every logger built here so verbosity can be
	// raised after the config file has been read.
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// GetLogger returns the process-wide sugared logger, building it on first use.
// The initial level comes from the LOG_LEVEL environment variable (default
// "info"); SetLevel overrides it once configuration is loaded.
func GetLogger() *zap.SugaredLogger {
	once.Do(initLogger)
	return logger
}

func initLogger() {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if l, err := ParseLevel(env); err == nil {
			level.SetLevel(l)
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)

	base := zap.New(core, zap.AddCaller())
	logger = base.Sugar()

	// Route anything written through the standard log package (third-party
	// code included) into the same core.
	zap.RedirectStdLog(base)
}

// SetLevel changes the verbosity of all loggers built by this package.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// ParseLevel converts a config-file level string into a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	return zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
}

// Sync flushes buffered log entries. Called before process exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
