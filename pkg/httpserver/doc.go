// Package httpserver wraps http.Server with environment configuration and
// graceful shutdown.
//
// Run blocks until the context is cancelled, an interrupt arrives, or the
// listener fails; in the first two cases in-flight requests get the
// configured shutdown window to finish.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil { … }
package httpserver
