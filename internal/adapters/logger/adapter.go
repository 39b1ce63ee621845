// Package logger provides adapters for the logging interface.
package logger

import (
	"context"
)

// Logger defines the logging interface used throughout the application.
// External loggers that implement these methods can be wrapped with ZapAdapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// ZapAdapter adapts a Logger to the application's logging interface and
// attaches a set of standing fields to every entry, so each subsystem can be
// identified in the log stream without threading labels through call sites.
type ZapAdapter struct {
	log  Logger
	base map[string]any
}

// NewZapAdapter creates a new ZapAdapter wrapping the given logger.
func NewZapAdapter(log Logger) *ZapAdapter {
	return &ZapAdapter{log: log}
}

// WithFields returns a new adapter whose entries carry the given fields in
// addition to any already attached. Per-entry fields win on key collisions.
func (a *ZapAdapter) WithFields(fields map[string]any) *ZapAdapter {
	merged := make(map[string]any, len(a.base)+len(fields))
	for k, v := range a.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ZapAdapter{log: a.log, base: merged}
}

// merge combines standing fields with per-entry fields.
func (a *ZapAdapter) merge(fields map[string]any) map[string]any {
	if len(a.base) == 0 {
		return fields
	}
	merged := make(map[string]any, len(a.base)+len(fields))
	for k, v := range a.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

// Info logs an info message.
func (a *ZapAdapter) Info(ctx context.Context, msg string, fields map[string]any) {
	a.log.Info(ctx, msg, a.merge(fields))
}

// Debug logs a debug message.
func (a *ZapAdapter) Debug(ctx context.Context, msg string, fields map[string]any) {
	a.log.Debug(ctx, msg, a.merge(fields))
}

// Warn logs a warning message.
func (a *ZapAdapter) Warn(ctx context.Context, msg string, fields map[string]any) {
	a.log.Warn(ctx, msg, a.merge(fields))
}

// Error logs an error message.
func (a *ZapAdapter) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	a.log.Error(ctx, msg, err, a.merge(fields))
}
