package idp

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Config describes the upstream OIDC provider federated sign-ins are
// verified against. Provider overrides the label derived from the issuer
// host when set.
type Config struct {
	Issuer   string `env:"OIDC_ISSUER"`
	ClientID string `env:"OIDC_CLIENT_ID"`
	Provider string `env:"OIDC_PROVIDER_LABEL"`

	// ClientSecret and RedirectURL are only needed for the
	// authorization-code flow (NewOIDCCodeVerifier).
	ClientSecret string `env:"OIDC_CLIENT_SECRET"`
	RedirectURL  string `env:"OIDC_REDIRECT_URL"`
}

// Validate reports whether the config is sufficient to build a verifier.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	return nil
}

// Enabled reports whether federated login is configured at all.
func (c Config) Enabled() bool { return c.Issuer != "" }

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
	provider string
}

// NewOIDCVerifier discovers the issuer's endpoints and returns a Verifier
// that validates ID tokens against its signing keys. Discovery happens
// once at construction; a dead issuer fails startup rather than the first
// login.
func NewOIDCVerifier(ctx context.Context, cfg Config) (Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Join(ErrDiscoveryFailed, err)
	}

	label := cfg.Provider
	if label == "" {
		label = ProviderLabel(cfg.Issuer)
	}

	return &oidcVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		provider: label,
	}, nil
}

// Verify validates the raw ID token (signature, issuer, audience, expiry)
// and maps its claims to an Assertion.
func (v *oidcVerifier) Verify(ctx context.Context, opaqueToken string) (Assertion, error) {
	return verifyIDToken(ctx, v.verifier, v.provider, opaqueToken)
}

func verifyIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, provider, rawIDToken string) (Assertion, error) {
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Assertion{}, errors.Join(ErrVerificationFailed, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Assertion{}, errors.Join(ErrVerificationFailed, err)
	}

	assertion := Assertion{
		ProviderUID:   idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		DisplayName:   claims.Name,
		PictureURL:    claims.Picture,
		Provider:      provider,
	}
	if err := assertion.Validate(); err != nil {
		return Assertion{}, errors.Join(ErrVerificationFailed, err)
	}
	return assertion, nil
}
