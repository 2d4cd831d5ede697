// Package logging declares the structured logger the rest of the code
// depends on, so packages stay decoupled from the concrete backend.
package logging

import "context"

// Logger is a leveled, context-aware logger. Variadic args are
// alternating key/value pairs:
//
//	log.Info(ctx, "draft saved", "draftID", id, "tries", n)
type Logger interface {
	// Debug logs diagnostic detail, normally filtered out in production.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs normal operational events.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs recoverable or suspicious conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that attaches the given key/value pairs
	// to every record it emits.
	With(args ...any) Logger
}
