// Package clientip extracts the client IP address from an HTTP request,
// honoring the usual proxy headers before falling back to the socket
// address. The auth core records the result on MFA attempt rows and
// session device metadata.
package clientip
