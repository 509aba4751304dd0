package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/authd/pkg/logger"
)

// Orchestrator sequences a login across the authenticator, the MFA
// engine, and the token service. It owns the three-way outcome of a
// sign-in attempt: rejected, challenged, or authenticated.
type Orchestrator struct {
	authenticator *Authenticator
	mfa           *MFAEngine
	tokens        *TokenService
	federated     *FederatedAdapter
	store         Store
	log           *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger for best-effort side effects.
func WithOrchestratorLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// NewOrchestrator wires the login flow. The federated adapter may be nil
// when no IdP is configured; FederatedLogin then fails with
// ErrAssertionInvalid.
func NewOrchestrator(store Store, authenticator *Authenticator, mfa *MFAEngine, tokens *TokenService, federated *FederatedAdapter, opts ...OrchestratorOption) (*Orchestrator, error) {
	if store == nil || authenticator == nil || mfa == nil || tokens == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("store, authenticator, mfa engine, and token service are required"))
	}

	o := &Orchestrator{
		store:         store,
		authenticator: authenticator,
		mfa:           mfa,
		tokens:        tokens,
		federated:     federated,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Login runs the password flow. deviceTrustToken, when present and valid
// for the resolved identity, skips the second factor; the response then
// carries a re-issued trust token so the window slides forward.
func (o *Orchestrator) Login(ctx context.Context, email, password, deviceTrustToken string, device DeviceMeta) (*LoginResult, error) {
	identity, err := o.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return o.gate(ctx, identity, deviceTrustToken, device)
}

// FederatedLogin exchanges an IdP token for local credentials. The
// password step is skipped; device-trust and MFA evaluation are not.
func (o *Orchestrator) FederatedLogin(ctx context.Context, providerToken, deviceTrustToken string, device DeviceMeta) (*LoginResult, error) {
	if o.federated == nil {
		return nil, ErrAssertionInvalid
	}
	identity, err := o.federated.Resolve(ctx, providerToken)
	if err != nil {
		return nil, err
	}
	return o.gate(ctx, identity, deviceTrustToken, device)
}

// gate is the shared post-credential step: device trust check, then MFA
// challenge or completed authentication. The credential already proved
// out, so the failure counter resets and last_login_at is stamped here,
// before any MFA gating.
func (o *Orchestrator) gate(ctx context.Context, identity *Identity, deviceTrustToken string, device DeviceMeta) (*LoginResult, error) {
	if err := o.store.RecordLoginSuccess(ctx, identity.ID); err != nil {
		return nil, err
	}

	if !identity.MFARequired() {
		return o.complete(ctx, identity, device, false)
	}

	if deviceTrustToken != "" && o.tokens.VerifyDeviceTrust(deviceTrustToken, identity.ID) {
		return o.complete(ctx, identity, device, true)
	}

	method := o.mfa.PreferredMethod(identity)
	if method == MFAMethodEmail {
		// Mail delivery must not block the challenge; the client can
		// request a resend.
		if err := o.mfa.SendEmailOTP(ctx, identity); err != nil {
			o.log.ErrorContext(ctx, "failed to send login otp",
				logger.Error(err),
				logger.IdentityID(identity.ID),
			)
		}
	}

	challenge, err := o.tokens.IssueChallenge(identity, method)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		RequiresMFA:    true,
		MFAType:        method,
		ChallengeToken: challenge,
		User:           identity.Profile(),
	}, nil
}

// VerifyMFA completes a challenged login. rememberDevice adds a
// device-trust token to the authenticated response.
func (o *Orchestrator) VerifyMFA(ctx context.Context, challengeToken, code string, rememberDevice bool, device DeviceMeta) (*LoginResult, error) {
	challenge, err := o.tokens.ParseChallenge(challengeToken)
	if err != nil {
		return nil, err
	}

	identity, err := o.store.FindIdentityByID(ctx, challenge.IdentityID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if identity.Status != StatusActive {
		return nil, ErrAccountInactive
	}

	if err := o.mfa.Verify(ctx, identity, challenge.MFAType, code, device); err != nil {
		return nil, err
	}
	return o.complete(ctx, identity, device, rememberDevice)
}

// complete finalizes a successful authentication: session started, tokens
// issued.
func (o *Orchestrator) complete(ctx context.Context, identity *Identity, device DeviceMeta, trustDevice bool) (*LoginResult, error) {
	pair, err := o.tokens.StartSession(ctx, identity, device)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		Tokens: pair,
		User:   identity.Profile(),
	}
	if trustDevice && identity.MFARequired() {
		trust, err := o.tokens.IssueDeviceTrust(identity)
		if err != nil {
			return nil, err
		}
		result.DeviceTrustToken = trust
	}
	return result, nil
}

// Refresh rotates a refresh token into a fresh pair.
func (o *Orchestrator) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, _, err := o.tokens.Refresh(ctx, refreshToken)
	return pair, err
}

// Logout revokes the session behind refreshToken. Idempotent.
func (o *Orchestrator) Logout(ctx context.Context, refreshToken string) error {
	return o.tokens.Logout(ctx, refreshToken)
}
