package totp

import "errors"

var (
	ErrSecretGeneration       = errors.New("failed to generate TOTP secret")
	ErrMissingSecret          = errors.New("missing secret")
	ErrInvalidSecret          = errors.New("invalid secret")
	ErrMissingAccountName     = errors.New("missing account name")
	ErrMissingIssuer          = errors.New("missing issuer")
	ErrInvalidCode            = errors.New("invalid code format")
	ErrInvalidBackupCodeCount = errors.New("invalid backup code count, must be greater than 0")
	ErrBackupCodeGeneration   = errors.New("failed to generate backup code")
)
