// Package logger provides the Logger interface used across bpt and adapters
// for popular logger libraries.
//
// The interface matches the method set of slog.Logger, so a *slog.Logger can be
// passed anywhere a Logger is expected. Use NewZap or NewLogrus to plug in an
// existing zap or logrus logger, or New to build one from configuration.
package logger

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger consumed by the tree engine, the database
// facade and the commands. Args are alternating key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Discard is the default logger; every call is a no-op.
type Discard struct{}

func (Discard) Debug(string, ...any) {}

func (Discard) Info(string, ...any) {}

func (Discard) Warn(string, ...any) {}

func (Discard) Error(string, ...any) {}

const (
	BackendZap    = "zap"
	BackendLogrus = "logrus"
	BackendNone   = "none"
)

// New builds a Logger for the named backend ("zap", "logrus" or "none") at the
// given level ("debug", "info", "warn", "error").
func New(backend, level string) (Logger, error) {
	switch strings.ToLower(backend) {
	case "", BackendZap:
		lvl, err := zapcore.ParseLevel(levelOrDefault(level))
		if err != nil {
			return nil, err
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		z, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return NewZap(z), nil
	case BackendLogrus:
		lvl, err := logrus.ParseLevel(levelOrDefault(level))
		if err != nil {
			return nil, err
		}
		l := logrus.New()
		l.SetLevel(lvl)
		return NewLogrus(l), nil
	case BackendNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
