package engine

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the engine's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the engine logger. Call it before the first engine
// use; it is not safe to race against running instances.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	logger = l
}

// debugf emits allocation and instantiation traces at debug level.
// The default no-op logger drops them; install a debug-level logger
// with SetLogger to see them.
func debugf(format string, args ...any) {
	Logger().Sugar().Debugf(format, args...)
}
