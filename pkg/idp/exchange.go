package idp

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

type codeVerifier struct {
	conf     *oauth2.Config
	verifier *oidc.IDTokenVerifier
	provider string
}

// NewOIDCCodeVerifier returns a Verifier for the authorization-code flow:
// the opaque token is an authorization code, which is exchanged at the
// issuer's token endpoint for an ID token before verification. Requires
// ClientSecret and RedirectURL in addition to the ID-token flow config.
func NewOIDCCodeVerifier(ctx context.Context, cfg Config) (Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("%w: client secret and redirect url are required for the code flow", ErrInvalidConfig)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Join(ErrDiscoveryFailed, err)
	}

	label := cfg.Provider
	if label == "" {
		label = ProviderLabel(cfg.Issuer)
	}

	return &codeVerifier{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		provider: label,
	}, nil
}

func (v *codeVerifier) Verify(ctx context.Context, opaqueToken string) (Assertion, error) {
	token, err := v.conf.Exchange(ctx, opaqueToken)
	if err != nil {
		return Assertion{}, errors.Join(ErrVerificationFailed, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Assertion{}, fmt.Errorf("%w: token response carries no id_token", ErrVerificationFailed)
	}

	return verifyIDToken(ctx, v.verifier, v.provider, rawIDToken)
}
