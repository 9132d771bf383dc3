package uhttp

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger receives debug output from the pipeline. keysAndValues are
// alternating key / value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig selects which pipeline stages are logged.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCache     bool
	LogTimeouts  bool
	LogHandlers  bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with every category switched on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogCache:     true,
		LogTimeouts:  true,
		LogHandlers:  true,
		RequestIDGen: generateRequestID,
	}
}

func generateRequestID() string {
	return uuid.NewString()
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger. A nil logger yields a no-op Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{s: l.Sugar()}
}

// NewSimpleLogger returns a human readable console logger at debug level.
func NewSimpleLogger() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return NopLogger()
	}
	return NewZapLogger(l)
}

// NopLogger discards everything.
func NopLogger() Logger {
	return NewZapLogger(zap.NewNop())
}

func (z zapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z zapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z zapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z zapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }
