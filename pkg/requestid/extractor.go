package requestid

import (
	"context"
	"log/slog"
)

// LoggerExtractor returns a context extractor for the logger factory that
// emits the request id as a "request_id" attribute.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if requestID := FromContext(ctx); requestID != "" {
			return slog.String("request_id", requestID), true
		}
		return slog.Attr{}, false
	}
}
