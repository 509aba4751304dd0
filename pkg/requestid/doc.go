// Package requestid assigns a correlation id to every request and threads
// it through context so log lines from one request can be stitched
// together.
//
// The middleware honors an X-Request-ID supplied by an upstream proxy when
// it looks sane, otherwise it mints a UUID. LoggerExtractor plugs the id
// into the logger factory's context extractors.
package requestid
