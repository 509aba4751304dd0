package auth

import "errors"

var (
	// Input errors.
	ErrEmailTaken   = errors.New("email is already registered")
	ErrInvalidInput = errors.New("invalid input")

	// Authentication errors. Deliberately unspecific: they never reveal
	// which part of the credential was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrInvalidMFA         = errors.New("invalid mfa code")
	ErrChallengeExpired   = errors.New("mfa challenge expired")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token has expired")
	ErrAssertionInvalid   = errors.New("identity assertion is invalid")

	// State errors. These carry enough for the client to proceed.
	ErrEmailNotVerified   = errors.New("email is not verified")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not active")
	ErrTOTPAlreadyEnabled = errors.New("totp is already enabled")
	ErrMFANotEnabled      = errors.New("mfa method is not enabled")

	// Lookup errors.
	ErrIdentityNotFound = errors.New("identity not found")
	ErrSessionNotFound  = errors.New("session not found")
)
