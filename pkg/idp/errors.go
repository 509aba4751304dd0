package idp

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid idp config")
	ErrDiscoveryFailed    = errors.New("failed to discover oidc provider")
	ErrVerificationFailed = errors.New("failed to verify identity token")
	ErrMissingSubject     = errors.New("identity token has no subject")
	ErrMissingEmail       = errors.New("identity token has no email claim")
)
