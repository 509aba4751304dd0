package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authd/pkg/logger"
	"github.com/dmitrymomot/authd/pkg/mailer"
	"github.com/dmitrymomot/authd/pkg/sanitizer"
	"github.com/dmitrymomot/authd/pkg/useragent"
	"github.com/dmitrymomot/authd/pkg/validator"
)

// Link token lifetimes.
const (
	DefaultVerificationTTL  = 24 * time.Hour
	DefaultPasswordResetTTL = time.Hour
)

// AccountService covers the account lifecycle outside of login:
// registration, email verification, password recovery and change, profile
// maintenance, and session management.
type AccountService struct {
	store           Store
	mailer          mailer.Mailer
	appName         string
	baseURL         string
	passwordPolicy  validator.PasswordPolicy
	bcryptCost      int
	verificationTTL time.Duration
	resetTTL        time.Duration
	clock           Clock
	log             *slog.Logger
}

// AccountOption configures an AccountService.
type AccountOption func(*AccountService)

// WithPasswordPolicy overrides the registration password policy.
func WithPasswordPolicy(policy validator.PasswordPolicy) AccountOption {
	return func(s *AccountService) { s.passwordPolicy = policy }
}

// WithAccountBcryptCost overrides the password hashing cost. Tests lower
// it; production keeps the bcrypt default.
func WithAccountBcryptCost(cost int) AccountOption {
	return func(s *AccountService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// WithVerificationTTL overrides the email verification link lifetime.
func WithVerificationTTL(ttl time.Duration) AccountOption {
	return func(s *AccountService) {
		if ttl > 0 {
			s.verificationTTL = ttl
		}
	}
}

// WithPasswordResetTTL overrides the reset link lifetime.
func WithPasswordResetTTL(ttl time.Duration) AccountOption {
	return func(s *AccountService) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithAccountClock injects the time source for token expiries.
func WithAccountClock(clock Clock) AccountOption {
	return func(s *AccountService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAccountLogger sets the logger for best-effort mail failures.
func WithAccountLogger(log *slog.Logger) AccountOption {
	return func(s *AccountService) {
		if log != nil {
			s.log = log
		}
	}
}

// NewAccountService wires the service. baseURL is the public web origin
// used to build verification and reset links.
func NewAccountService(store Store, m mailer.Mailer, appName, baseURL string, opts ...AccountOption) (*AccountService, error) {
	if store == nil || m == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("store and mailer are required"))
	}
	if appName == "" || baseURL == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("app name and base url are required"))
	}

	s := &AccountService{
		store:           store,
		mailer:          m,
		appName:         appName,
		baseURL:         baseURL,
		passwordPolicy:  validator.DefaultPasswordPolicy(),
		bcryptCost:      bcrypt.DefaultCost,
		verificationTTL: DefaultVerificationTTL,
		resetTTL:        DefaultPasswordResetTTL,
		clock:           time.Now,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterParams is the registration input before sanitization.
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
	Phone       string
	Kind        Kind
	Locale      string
	Currency    string
}

// Register creates a pending identity and mails the verification link.
// The identity cannot log in until the link is followed. Mail failure is
// logged, not fatal; the user can request a resend.
func (s *AccountService) Register(ctx context.Context, params RegisterParams) (*Identity, error) {
	email := sanitizer.NormalizeEmail(params.Email)
	displayName := sanitizer.CollapseWhitespace(sanitizer.TrimString(params.DisplayName))
	phone := sanitizer.DigitsOnly(params.Phone)
	if params.Kind == "" {
		params.Kind = KindIndividual
	}

	if err := validator.Apply(
		validator.Required("email", email),
		validator.ValidEmail("email", email),
		validator.StrongPassword("password", params.Password, s.passwordPolicy),
		validator.NotCommonPassword("password", params.Password),
		validator.MaxLen("display_name", displayName, 100),
		validator.OneOf("kind", string(params.Kind), string(KindIndividual), string(KindBusiness)),
	); err != nil {
		return nil, errors.Join(ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := generateLinkToken()
	if err != nil {
		return nil, err
	}

	identity := &Identity{
		Email:                    email,
		Phone:                    phone,
		DisplayName:              displayName,
		Kind:                     params.Kind,
		Status:                   StatusPendingVerification,
		Locale:                   params.Locale,
		Currency:                 params.Currency,
		PasswordHash:             string(hash),
		Provider:                 ProviderPassword,
		EmailVerificationToken:   token,
		EmailVerificationExpires: s.clock().Add(s.verificationTTL),
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}

	s.sendBestEffort(ctx, identity.ID, verificationEmail(s.appName, identity.Email, s.verificationLink(token)))
	return identity, nil
}

// VerifyEmail consumes a verification token, activates the identity, and
// sends the welcome mail.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	identity, err := s.store.FindIdentityByVerificationToken(ctx, token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if identity.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	if !identity.EmailVerificationExpires.After(s.clock()) {
		return nil, ErrTokenExpired
	}

	if err := s.store.SetEmailVerified(ctx, identity.ID); err != nil {
		return nil, err
	}
	identity.EmailVerified = true
	identity.EmailVerificationToken = ""
	if identity.Status == StatusPendingVerification {
		identity.Status = StatusActive
	}

	s.sendBestEffort(ctx, identity.ID, welcomeEmail(s.appName, identity.Email, identity.DisplayName))
	return identity, nil
}

// ResendVerification issues a fresh verification token and mails it.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	identity, err := s.store.FindIdentityByEmail(ctx, sanitizer.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if identity.EmailVerified {
		return ErrAlreadyVerified
	}

	token, err := generateLinkToken()
	if err != nil {
		return err
	}
	if err := s.store.SetVerificationToken(ctx, identity.ID, token, s.clock().Add(s.verificationTTL)); err != nil {
		return err
	}

	msg := verificationEmail(s.appName, identity.Email, s.verificationLink(token))
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

// ForgotPassword starts password recovery. Unknown emails are silently
// accepted so the endpoint cannot be used to probe registrations.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	identity, err := s.store.FindIdentityByEmail(ctx, sanitizer.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil
		}
		return err
	}
	if identity.PasswordHash == "" {
		// Federated-only identity, nothing to reset.
		return nil
	}

	token, err := generateLinkToken()
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordResetToken(ctx, identity.ID, token, s.clock().Add(s.resetTTL)); err != nil {
		return err
	}

	s.sendBestEffort(ctx, identity.ID, passwordResetEmail(s.appName, identity.Email, s.resetLink(token)))
	return nil
}

// ResetPassword consumes a reset token and replaces the password. Every
// session is revoked; whoever requested the reset must sign in again.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrTokenInvalid
	}
	if err := validator.Apply(
		validator.StrongPassword("password", newPassword, s.passwordPolicy),
		validator.NotCommonPassword("password", newPassword),
	); err != nil {
		return errors.Join(ErrInvalidInput, err)
	}

	identity, err := s.store.FindIdentityByResetToken(ctx, token)
	if err != nil {
		return ErrTokenInvalid
	}
	if !identity.PasswordResetTokenExpires.After(s.clock()) {
		return ErrTokenExpired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, identity.ID, string(hash)); err != nil {
		return err
	}
	return s.store.DeactivateAllSessions(ctx, identity.ID)
}

// ChangePassword replaces the password after verifying the current one.
// Other sessions are revoked; the session holding currentRefreshToken
// stays alive.
func (s *AccountService) ChangePassword(ctx context.Context, identity *Identity, currentPassword, newPassword, currentRefreshToken string) error {
	if identity.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(currentPassword)) != nil {
		return ErrInvalidCredentials
	}
	if err := validator.Apply(
		validator.StrongPassword("password", newPassword, s.passwordPolicy),
		validator.NotCommonPassword("password", newPassword),
	); err != nil {
		return errors.Join(ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, identity.ID, string(hash)); err != nil {
		return err
	}
	return s.store.DeactivateOtherSessions(ctx, identity.ID, hashToken(currentRefreshToken))
}

// GetProfile returns the client-safe projection of an identity.
func (s *AccountService) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	identity, err := s.store.FindIdentityByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return identity.Profile(), nil
}

// UpdateProfile applies a sanitized patch and returns the updated
// projection.
func (s *AccountService) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (Profile, error) {
	if patch.DisplayName != nil {
		name := sanitizer.CollapseWhitespace(sanitizer.TrimString(*patch.DisplayName))
		if err := validator.Apply(validator.MaxLen("display_name", name, 100)); err != nil {
			return Profile{}, errors.Join(ErrInvalidInput, err)
		}
		patch.DisplayName = &name
	}
	if patch.Phone != nil {
		phone := sanitizer.DigitsOnly(*patch.Phone)
		if err := validator.Apply(validator.ValidPhone("phone", phone)); err != nil {
			return Profile{}, errors.Join(ErrInvalidInput, err)
		}
		patch.Phone = &phone
	}
	if patch.Kind != nil {
		if err := validator.Apply(validator.OneOf("kind", string(*patch.Kind), string(KindIndividual), string(KindBusiness))); err != nil {
			return Profile{}, errors.Join(ErrInvalidInput, err)
		}
	}

	identity, err := s.store.UpdateProfile(ctx, id, patch)
	if err != nil {
		return Profile{}, err
	}
	return identity.Profile(), nil
}

// DeleteAccount soft-deletes the identity and kills every session. The
// row survives for audit; the email becomes reusable.
func (s *AccountService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDeleteIdentity(ctx, id); err != nil {
		return err
	}
	return s.store.DeactivateAllSessions(ctx, id)
}

// SessionInfo is the client-facing view of one active session.
type SessionInfo struct {
	ID         uuid.UUID `json:"id"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Device     string    `json:"device,omitempty"` // e.g. "Chrome/126 (macOS, desktop)"
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

// ListSessions returns the identity's active sessions, newest first.
// currentRefreshToken, when supplied, marks the caller's own session.
func (s *AccountService) ListSessions(ctx context.Context, id uuid.UUID, currentRefreshToken string) ([]SessionInfo, error) {
	sessions, err := s.store.ListActiveSessions(ctx, id, s.clock())
	if err != nil {
		return nil, err
	}

	currentHash := ""
	if currentRefreshToken != "" {
		currentHash = hashToken(currentRefreshToken)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, SessionInfo{
			ID:         session.ID,
			IP:         session.DeviceMeta.IP,
			UserAgent:  session.DeviceMeta.UserAgent,
			Device:     deviceLabel(session.DeviceMeta.UserAgent),
			CreatedAt:  session.CreatedAt,
			LastUsedAt: session.LastUsedAt,
			ExpiresAt:  session.ExpiresAt,
			Current:    currentHash != "" && session.RefreshTokenHash == currentHash,
		})
	}
	return infos, nil
}

// deviceLabel turns a raw user agent into a short human-readable
// identifier for session listings.
func deviceLabel(ua string) string {
	if ua == "" {
		return ""
	}
	parsed, err := useragent.Parse(ua)
	if err != nil {
		return ""
	}
	return parsed.GetShortIdentifier()
}

// RevokeSession deactivates one of the identity's own sessions.
func (s *AccountService) RevokeSession(ctx context.Context, identityID, sessionID uuid.UUID) error {
	return s.store.DeactivateSessionByID(ctx, identityID, sessionID)
}

func (s *AccountService) verificationLink(token string) string {
	return fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, url.QueryEscape(token))
}

func (s *AccountService) resetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, url.QueryEscape(token))
}

func (s *AccountService) sendBestEffort(ctx context.Context, identityID uuid.UUID, msg mailer.Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.ErrorContext(ctx, "failed to send mail",
			logger.Error(err),
			logger.IdentityID(identityID),
			slog.String("tag", msg.Tag),
		)
	}
}

// generateLinkToken draws a 32-byte random token encoded as hex.
func generateLinkToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
