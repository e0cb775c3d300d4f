// Package logging provides the shared zap-logger convention used across the
// engine's core packages and cmd/tsrule: a production config at the CLI
// entrypoint with an atomic level flipped by --verbose. Core library
// packages never build their own logger: internal/store, internal/rule,
// internal/exec and internal/runtime accept an injected *zap.Logger that
// defaults to a no-op sink, so the engine behaves as a silent library
// unless a caller opts into diagnostics; internal/solver and
// internal/match take no logger at all.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger, at debug level when verbose is true.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return logger, nil
}

// NopIfNil returns l, or a no-op logger if l is nil, so core packages can
// accept an optional injected logger without a nil check at every call
// site.
func NopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
