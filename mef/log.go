package mef

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var defaultLogger atomic.Pointer[zap.Logger]

func init() {
	defaultLogger.Store(zap.NewNop())
}

// SetLogger replaces the package logger used when no per-call logger is
// given. A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger.Store(l)
}

// Logger returns the package logger.
func Logger() *zap.Logger {
	return defaultLogger.Load()
}
