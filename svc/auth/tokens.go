package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token family discriminators carried in the "type" claim. A token of one
// family is never accepted where another is expected.
const (
	tokenTypeAccess      = "access"
	tokenTypeRefresh     = "refresh"
	tokenTypeChallenge   = "temp"
	tokenTypeDeviceTrust = "mfa_session"
)

// Default lifetimes for each token family.
const (
	DefaultAccessTTL      = 30 * time.Minute
	DefaultRefreshTTL     = 7 * 24 * time.Hour
	DefaultChallengeTTL   = 5 * time.Minute
	DefaultDeviceTrustTTL = 7 * 24 * time.Hour
)

type accessClaims struct {
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

type challengeClaims struct {
	Email      string `json:"email"`
	Type       string `json:"type"`
	MFAType    string `json:"mfa_type"`
	MFAPending bool   `json:"mfa_pending"`
	jwt.RegisteredClaims
}

type deviceTrustClaims struct {
	Email       string `json:"email"`
	Type        string `json:"type"`
	MFAVerified bool   `json:"mfa_verified"`
	jwt.RegisteredClaims
}

// Challenge is a parsed, still-valid MFA challenge token.
type Challenge struct {
	IdentityID uuid.UUID
	Email      string
	MFAType    MFAMethod
}

// TokenService issues and validates the four token families (access,
// refresh, challenge, device trust) and owns the session rows that back
// refresh tokens. Tokens are HMAC-SHA256 JWTs; refresh tokens are
// additionally anchored server-side by the SHA-256 digest of the issued
// string, so a refresh survives only as long as its session row.
type TokenService struct {
	store          Store
	signingKey     []byte
	accessTTL      time.Duration
	refreshTTL     time.Duration
	challengeTTL   time.Duration
	deviceTrustTTL time.Duration
	clock          Clock
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token and session lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithChallengeTTL overrides the MFA challenge lifetime.
func WithChallengeTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
	}
}

// WithDeviceTrustTTL overrides the device trust token lifetime.
func WithDeviceTrustTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.deviceTrustTTL = ttl
		}
	}
}

// WithTokenClock injects the time source used for issuance and validation.
func WithTokenClock(clock Clock) TokenOption {
	return func(s *TokenService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewTokenService creates a token service signing with signingKey. The key
// must be non-empty; 32 bytes or more is expected for HMAC-SHA256.
func NewTokenService(store Store, signingKey []byte, opts ...TokenOption) (*TokenService, error) {
	if store == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("store is required"))
	}
	if len(signingKey) == 0 {
		return nil, errors.Join(ErrInvalidInput, errors.New("signing key is required"))
	}

	s := &TokenService{
		store:          store,
		signingKey:     signingKey,
		accessTTL:      DefaultAccessTTL,
		refreshTTL:     DefaultRefreshTTL,
		challengeTTL:   DefaultChallengeTTL,
		deviceTrustTTL: DefaultDeviceTrustTTL,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock),
	)
	return err
}

func (s *TokenService) registered(identityID uuid.UUID, ttl time.Duration) jwt.RegisteredClaims {
	now := s.clock()
	return jwt.RegisteredClaims{
		Subject:   identityID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// hashToken is the storage form of a refresh token: hex SHA-256 of the
// issued string.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// issuePair signs a fresh access/refresh pair without touching the store.
func (s *TokenService) issuePair(identity *Identity) (*TokenPair, error) {
	access, err := s.sign(accessClaims{
		Email:            identity.Email,
		Type:             tokenTypeAccess,
		RegisteredClaims: s.registered(identity.ID, s.accessTTL),
	})
	if err != nil {
		return nil, err
	}

	refreshReg := s.registered(identity.ID, s.refreshTTL)
	refreshReg.ID = uuid.NewString()
	refresh, err := s.sign(refreshClaims{
		Email:            identity.Email,
		Type:             tokenTypeRefresh,
		RegisteredClaims: refreshReg,
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// StartSession issues a token pair and records the session row anchoring
// the refresh token.
func (s *TokenService) StartSession(ctx context.Context, identity *Identity, device DeviceMeta) (*TokenPair, error) {
	pair, err := s.issuePair(identity)
	if err != nil {
		return nil, err
	}

	session := &Session{
		IdentityID:       identity.ID,
		RefreshTokenHash: hashToken(pair.RefreshToken),
		DeviceMeta:       device,
		ExpiresAt:        s.clock().Add(s.refreshTTL),
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return pair, nil
}

// Refresh rotates the session behind refreshToken and returns a fresh
// pair. The old token is dead afterwards; replaying it, or presenting a
// token whose session was revoked, yields ErrInvalidRefresh.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *Identity, error) {
	var claims refreshClaims
	if err := s.parse(refreshToken, &claims); err != nil {
		return nil, nil, ErrInvalidRefresh
	}
	if claims.Type != tokenTypeRefresh {
		return nil, nil, ErrInvalidRefresh
	}

	identityID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, ErrInvalidRefresh
	}

	oldHash := hashToken(refreshToken)
	now := s.clock()
	session, err := s.store.FindActiveSession(ctx, oldHash, now)
	if err != nil {
		return nil, nil, ErrInvalidRefresh
	}
	if session.IdentityID != identityID {
		return nil, nil, ErrInvalidRefresh
	}

	identity, err := s.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return nil, nil, ErrInvalidRefresh
	}
	if identity.Status != StatusActive {
		return nil, nil, ErrAccountInactive
	}

	pair, err := s.issuePair(identity)
	if err != nil {
		return nil, nil, err
	}

	next := &Session{
		IdentityID:       identity.ID,
		RefreshTokenHash: hashToken(pair.RefreshToken),
		DeviceMeta:       session.DeviceMeta,
		ExpiresAt:        now.Add(s.refreshTTL),
	}
	if err := s.store.RotateSession(ctx, oldHash, next); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// Lost the race to a concurrent refresh of the same token.
			return nil, nil, ErrInvalidRefresh
		}
		return nil, nil, fmt.Errorf("rotate session: %w", err)
	}
	return pair, identity, nil
}

// Logout deactivates the session behind refreshToken. Unknown or already
// revoked tokens are not an error.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	return s.store.DeactivateSession(ctx, hashToken(refreshToken))
}

// VerifyAccess validates an access token and returns the identity it was
// issued to. Expired tokens map to ErrTokenExpired, everything else that
// fails to ErrTokenInvalid.
func (s *TokenService) VerifyAccess(ctx context.Context, accessToken string) (*Identity, error) {
	var claims accessClaims
	if err := s.parse(accessToken, &claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.Type != tokenTypeAccess {
		return nil, ErrTokenInvalid
	}

	identityID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	identity, err := s.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if identity.Status != StatusActive {
		return nil, ErrAccountInactive
	}
	return identity, nil
}

// IssueChallenge signs a short-lived MFA challenge binding the identity to
// the second factor it must complete.
func (s *TokenService) IssueChallenge(identity *Identity, method MFAMethod) (string, error) {
	return s.sign(challengeClaims{
		Email:            identity.Email,
		Type:             tokenTypeChallenge,
		MFAType:          string(method),
		MFAPending:       true,
		RegisteredClaims: s.registered(identity.ID, s.challengeTTL),
	})
}

// ParseChallenge validates a challenge token. Expiry maps to
// ErrChallengeExpired so clients know to restart the login.
func (s *TokenService) ParseChallenge(token string) (*Challenge, error) {
	var claims challengeClaims
	if err := s.parse(token, &claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrChallengeExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.Type != tokenTypeChallenge || !claims.MFAPending {
		return nil, ErrTokenInvalid
	}

	identityID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &Challenge{
		IdentityID: identityID,
		Email:      claims.Email,
		MFAType:    MFAMethod(claims.MFAType),
	}, nil
}

// IssueDeviceTrust signs a long-lived token recording that this device
// already passed MFA.
func (s *TokenService) IssueDeviceTrust(identity *Identity) (string, error) {
	return s.sign(deviceTrustClaims{
		Email:            identity.Email,
		Type:             tokenTypeDeviceTrust,
		MFAVerified:      true,
		RegisteredClaims: s.registered(identity.ID, s.deviceTrustTTL),
	})
}

// VerifyDeviceTrust reports whether token is a valid device trust token
// for the identity. Invalid or expired tokens simply report false; a bad
// device trust token never fails a login, it only forces the challenge.
func (s *TokenService) VerifyDeviceTrust(token string, identityID uuid.UUID) bool {
	var claims deviceTrustClaims
	if err := s.parse(token, &claims); err != nil {
		return false
	}
	if claims.Type != tokenTypeDeviceTrust || !claims.MFAVerified {
		return false
	}
	return claims.Subject == identityID.String()
}
