// Package authapi exposes the authentication service over HTTP as a JSON
// API. It owns request decoding, the sentinel-to-status error mapping,
// and the bearer middleware; all decisions are delegated to svc/auth.
package authapi
