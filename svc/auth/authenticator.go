package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authd/pkg/sanitizer"
)

// Lockout policy defaults: the account locks after
// DefaultLockoutThreshold consecutive failures for DefaultLockoutDuration.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// Authenticator verifies password credentials and drives the lockout
// counter. It never issues tokens; a successful call only proves the
// credential and returns the identity snapshot for the orchestrator.
type Authenticator struct {
	store        Store
	threshold    int
	lockDuration time.Duration
	clock        Clock
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithLockoutThreshold overrides the consecutive-failure count that locks
// the account.
func WithLockoutThreshold(threshold int) AuthenticatorOption {
	return func(a *Authenticator) {
		if threshold > 0 {
			a.threshold = threshold
		}
	}
}

// WithLockoutDuration overrides how long a lockout lasts.
func WithLockoutDuration(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		if d > 0 {
			a.lockDuration = d
		}
	}
}

// WithAuthenticatorClock injects the time source for lockout decisions.
func WithAuthenticatorClock(clock Clock) AuthenticatorOption {
	return func(a *Authenticator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewAuthenticator creates an Authenticator with the default lockout
// policy.
func NewAuthenticator(store Store, opts ...AuthenticatorOption) (*Authenticator, error) {
	if store == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("store is required"))
	}

	a := &Authenticator{
		store:        store,
		threshold:    DefaultLockoutThreshold,
		lockDuration: DefaultLockoutDuration,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate checks email+password and returns the identity on success.
//
// The checks run in a fixed order: existence, open lockout, password,
// then account state. A wrong password on an existing identity increments
// the failure counter and always reports ErrInvalidCredentials, including
// the attempt that arms the lockout; ErrAccountLocked surfaces on the
// attempts that follow. Identities without a password credential
// (federated-only) fail with ErrInvalidCredentials without touching the
// counter.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := a.store.FindIdentityByEmail(ctx, sanitizer.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := a.clock()
	if identity.Locked(now) {
		return nil, ErrAccountLocked
	}

	if identity.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) != nil {
		if _, ferr := a.store.RecordLoginFailure(ctx, identity.ID, a.threshold, now.Add(a.lockDuration)); ferr != nil {
			return nil, ferr
		}
		return nil, ErrInvalidCredentials
	}

	switch identity.Status {
	case StatusPendingVerification:
		return nil, ErrEmailNotVerified
	case StatusActive:
		return identity, nil
	default:
		return nil, ErrAccountInactive
	}
}
