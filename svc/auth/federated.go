package auth

import (
	"context"
	"errors"

	"github.com/dmitrymomot/authd/pkg/idp"
	"github.com/dmitrymomot/authd/pkg/sanitizer"
)

// Defaults applied to auto-provisioned federated identities. The provider
// attested the email, so the identity starts active and verified; the
// placeholder phone satisfies the not-null column until the user fills in
// a real one.
const (
	federatedPlaceholderPhone = "+0000000000"
	federatedDefaultLocale    = "en"
	federatedDefaultCurrency  = "USD"
)

// FederatedAdapter turns provider-issued identity tokens into local
// identities. Resolution precedence: an identity already linked to the
// provider uid wins, then an identity owning the asserted email gets
// linked, and only then a new identity is provisioned.
type FederatedAdapter struct {
	store    Store
	verifier idp.Verifier
}

// NewFederatedAdapter wires the adapter to the IdP verifier.
func NewFederatedAdapter(store Store, verifier idp.Verifier) (*FederatedAdapter, error) {
	if store == nil || verifier == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("store and verifier are required"))
	}
	return &FederatedAdapter{store: store, verifier: verifier}, nil
}

// Resolve verifies the opaque provider token and returns the local
// identity it maps to, provisioning one when needed.
func (a *FederatedAdapter) Resolve(ctx context.Context, providerToken string) (*Identity, error) {
	assertion, err := a.verifier.Verify(ctx, providerToken)
	if err != nil {
		return nil, errors.Join(ErrAssertionInvalid, err)
	}
	if err := assertion.Validate(); err != nil {
		return nil, errors.Join(ErrAssertionInvalid, err)
	}
	assertion.Email = sanitizer.NormalizeEmail(assertion.Email)

	identity, err := a.store.FindIdentityByFederatedID(ctx, assertion.ProviderUID)
	switch {
	case err == nil:
		return gateFederated(identity)
	case !errors.Is(err, ErrIdentityNotFound):
		return nil, err
	}

	identity, err = a.store.FindIdentityByEmail(ctx, assertion.Email)
	switch {
	case err == nil:
		return a.link(ctx, identity, assertion)
	case !errors.Is(err, ErrIdentityNotFound):
		return nil, err
	}

	return a.provision(ctx, assertion)
}

// link attaches the provider uid to an identity that registered with the
// same email. A password identity becomes a "both" identity; the
// provider's email attestation also settles our own verification.
func (a *FederatedAdapter) link(ctx context.Context, identity *Identity, assertion idp.Assertion) (*Identity, error) {
	provider := assertion.Provider
	if identity.PasswordHash != "" {
		provider = ProviderBoth
	}
	if err := a.store.LinkFederatedID(ctx, identity.ID, assertion.ProviderUID, provider); err != nil {
		return nil, err
	}
	identity.FederatedID = assertion.ProviderUID
	identity.Provider = provider

	if assertion.EmailVerified && !identity.EmailVerified {
		if err := a.store.SetEmailVerified(ctx, identity.ID); err != nil {
			return nil, err
		}
		identity.EmailVerified = true
		if identity.Status == StatusPendingVerification {
			identity.Status = StatusActive
		}
	}
	return gateFederated(identity)
}

func (a *FederatedAdapter) provision(ctx context.Context, assertion idp.Assertion) (*Identity, error) {
	identity := &Identity{
		Email:         assertion.Email,
		Phone:         federatedPlaceholderPhone,
		DisplayName:   assertion.DisplayName,
		PictureURL:    assertion.PictureURL,
		Kind:          KindIndividual,
		Status:        StatusActive,
		Locale:        federatedDefaultLocale,
		Currency:      federatedDefaultCurrency,
		EmailVerified: true,
		FederatedID:   assertion.ProviderUID,
		Provider:      assertion.Provider,
	}
	if err := a.store.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// gateFederated refuses identities that cannot sign in regardless of how
// strongly the provider vouches for them.
func gateFederated(identity *Identity) (*Identity, error) {
	switch identity.Status {
	case StatusActive:
		return identity, nil
	case StatusPendingVerification:
		return nil, ErrEmailNotVerified
	default:
		return nil, ErrAccountInactive
	}
}
