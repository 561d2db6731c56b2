// Package corelog provides the default structured Logger implementation
// the consensus core logs through. The core itself only depends on a
// three-method interface (Info/Debug/Error); this package supplies a
// concrete, production-grade backend for it.
package corelog

import (
	"go.uber.org/zap"
)

// Logger adapts a *zap.SugaredLogger to the core.Logger interface
// (Info/Debug/Error, each taking a message and alternating key/value
// pairs), the same shape the teacher repo's own Logger interface uses.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New wraps the given zap logger.
func New(z *zap.Logger) *Logger {
	return &Logger{sugar: z.Sugar()}
}

// NewProduction builds a Logger backed by zap's production defaults
// (JSON encoding, info level and above).
func NewProduction() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	return New(z), nil
}

// NewDevelopment builds a Logger backed by zap's development defaults
// (human-readable console encoding, debug level and above), intended
// for tests and local runs.
func NewDevelopment() (*Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	return New(z), nil
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, args...)
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.sugar.Errorw(msg, args...)
}

// Sync flushes any buffered log entries; callers should defer it at
// process shutdown.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
