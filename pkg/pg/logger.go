package pg

import "context"

// logger is the slice of slog the package needs; declared locally so the
// package does not depend on a concrete logging setup.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
