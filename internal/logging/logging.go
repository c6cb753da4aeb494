// Package logging builds the process-wide zap logger.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names used with For.
const (
	ComponentCLI          = "cli"
	ComponentOrchestrator = "orchestrator"
	ComponentScan         = "scan"
	ComponentReport       = "report"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop().Sugar()
)

// New builds a console logger. Debug enables development output and debug level.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.DisableStacktrace = true
		cfg.Sampling = nil
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Init installs l as the process logger returned by For.
func Init(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	base = l
}

// For returns a named child of the process logger. Before Init it is a no-op logger.
func For(component string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(component)
}

// Sync flushes the process logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
