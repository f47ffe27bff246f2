// Package log carries zap fields through a context so that
// every log line emitted while handling a tick carries the
// tick it belongs to.
package log

import (
	"context"

	"go.uber.org/zap"
)

type key int

const contextKey key = iota

// WithContext enriches the logger with fields from the context
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	return logger.With(Fields(ctx)...)
}

// WithFields adds log fields to the context
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	parent := Fields(ctx)
	merged := make([]zap.Field, 0, len(parent)+len(fields))
	merged = append(merged, parent...)

	return context.WithValue(ctx, contextKey, append(merged, fields...))
}

// Fields extracts log fields from the context
func Fields(ctx context.Context) []zap.Field {
	rawFields := ctx.Value(contextKey)

	if rawFields == nil {
		return []zap.Field{}
	}

	fields, ok := rawFields.([]zap.Field)

	if !ok {
		return []zap.Field{}
	}

	return fields
}

// WithTick tags the context with a tick number
func WithTick(ctx context.Context, tick int) context.Context {
	return WithFields(ctx, zap.Int("tick", tick))
}
