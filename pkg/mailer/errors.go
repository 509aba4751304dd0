package mailer

import "errors"

var (
	ErrInvalidConfig  = errors.New("invalid mailer config")
	ErrInvalidMessage = errors.New("invalid message")
	ErrSendFailed     = errors.New("failed to send email")
	// ErrTransient marks delivery failures that may succeed on retry:
	// network errors and provider-side 5xx responses. Callers on
	// best-effort paths log these and move on.
	ErrTransient = errors.New("transient delivery failure")
)
