package idp

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Assertion is the verified claim set of a federated sign-in. ProviderUID
// is the provider's stable subject identifier; Provider is a short label
// ("google", "github") used when recording how an identity signs in.
type Assertion struct {
	ProviderUID   string
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string
	Provider      string
}

// Validate reports whether the assertion carries the claims the auth core
// requires to resolve an identity.
func (a Assertion) Validate() error {
	if a.ProviderUID == "" {
		return ErrMissingSubject
	}
	if a.Email == "" {
		return ErrMissingEmail
	}
	return nil
}

// Verifier checks an opaque identity-provider token and returns its
// verified claims.
type Verifier interface {
	Verify(ctx context.Context, opaqueToken string) (Assertion, error)
}

// ProviderLabel derives a short provider name from an OIDC issuer URL:
// "https://accounts.google.com" becomes "google". Unrecognizable issuers
// fall back to their full host.
func ProviderLabel(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return issuer
	}

	// The registrable-domain label is the most useful short name:
	// accounts.google.com -> google, login.example.io -> example.
	parts := strings.Split(u.Hostname(), ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return u.Hostname()
}

// VerifierFunc adapts a function to the Verifier interface. Used by tests
// and by deployments that terminate verification elsewhere.
type VerifierFunc func(ctx context.Context, opaqueToken string) (Assertion, error)

func (f VerifierFunc) Verify(ctx context.Context, opaqueToken string) (Assertion, error) {
	return f(ctx, opaqueToken)
}

var errNoVerifier = errors.New("federated login is not configured")

// Disabled returns a Verifier that rejects every token. Wired when no OIDC
// issuer is configured so the federated endpoint degrades cleanly.
func Disabled() Verifier {
	return VerifierFunc(func(context.Context, string) (Assertion, error) {
		return Assertion{}, errors.Join(ErrVerificationFailed, errNoVerifier)
	})
}
