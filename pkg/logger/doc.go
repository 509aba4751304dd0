// Package logger provides a context-aware factory around log/slog with
// functional options and shared attribute constructors.
//
// New builds a *slog.Logger from Option functions: output format (text or
// json), minimum level, static attributes applied to every record, and
// ContextExtractor callbacks that inject request-scoped values (for example
// the correlation id placed in context by the requestid middleware) at log
// time.
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "authd"),
//	    logger.WithContextExtractors(requestid.LogExtractor()),
//	)
//
// Constructors in attr.go (Error, IdentityID, Component, …) keep attribute
// keys consistent across the codebase.
package logger
