package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authd/pkg/logger"
	"github.com/dmitrymomot/authd/pkg/mailer"
	"github.com/dmitrymomot/authd/pkg/qrcode"
	"github.com/dmitrymomot/authd/pkg/secrets"
	"github.com/dmitrymomot/authd/pkg/totp"
)

// DefaultEmailOTPTTL is how long an emailed sign-in code stays valid.
const DefaultEmailOTPTTL = 5 * time.Minute

const emailOTPDigits = 6

var emailOTPBound = big.NewInt(1_000_000)

// backupCodeSeparator joins backup codes into the single string that gets
// encrypted as one ciphertext.
const backupCodeSeparator = ","

// MFAEngine owns every second-factor mechanism: TOTP enrollment and
// verification, single-use backup codes, and emailed one-time codes. It
// is the only component that sees TOTP secrets or backup codes in
// plaintext; they cross its boundary exclusively as ciphertext produced
// by the injected cipher.
type MFAEngine struct {
	store           Store
	cipher          *secrets.Cipher
	mailer          mailer.Mailer
	issuer          string
	appName         string
	otpTTL          time.Duration
	bcryptCost      int
	backupCodeCount int
	qrSize          int
	clock           Clock
	log             *slog.Logger
}

// MFAOption configures an MFAEngine.
type MFAOption func(*MFAEngine)

// WithEmailOTPTTL overrides the emailed code lifetime.
func WithEmailOTPTTL(ttl time.Duration) MFAOption {
	return func(e *MFAEngine) {
		if ttl > 0 {
			e.otpTTL = ttl
		}
	}
}

// WithBackupCodeCount overrides how many backup codes an enrollment gets.
func WithBackupCodeCount(count int) MFAOption {
	return func(e *MFAEngine) {
		if count > 0 {
			e.backupCodeCount = count
		}
	}
}

// WithBcryptCost overrides the cost used for hashing emailed codes.
// Tests lower it; production keeps the bcrypt default.
func WithBcryptCost(cost int) MFAOption {
	return func(e *MFAEngine) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			e.bcryptCost = cost
		}
	}
}

// WithQRSize overrides the pixel size of the enrollment QR code.
func WithQRSize(size int) MFAOption {
	return func(e *MFAEngine) {
		if size > 0 {
			e.qrSize = size
		}
	}
}

// WithMFAClock injects the time source for code validation and expiries.
func WithMFAClock(clock Clock) MFAOption {
	return func(e *MFAEngine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithMFALogger sets the logger for attempt bookkeeping failures.
func WithMFALogger(log *slog.Logger) MFAOption {
	return func(e *MFAEngine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewMFAEngine wires the engine. issuer is the label shown in
// authenticator apps; appName appears in outbound mail.
func NewMFAEngine(store Store, cipher *secrets.Cipher, m mailer.Mailer, issuer, appName string, opts ...MFAOption) (*MFAEngine, error) {
	if store == nil || cipher == nil || m == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("store, cipher, and mailer are required"))
	}
	if issuer == "" || appName == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("issuer and app name are required"))
	}

	e := &MFAEngine{
		store:           store,
		cipher:          cipher,
		mailer:          m,
		issuer:          issuer,
		appName:         appName,
		otpTTL:          DefaultEmailOTPTTL,
		bcryptCost:      bcrypt.DefaultCost,
		backupCodeCount: totp.DefaultBackupCodeCount,
		qrSize:          256,
		clock:           time.Now,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PreferredMethod picks the factor a login challenge should ask for.
// TOTP wins when both are enabled.
func (e *MFAEngine) PreferredMethod(identity *Identity) MFAMethod {
	if identity.TOTPEnabled {
		return MFAMethodTOTP
	}
	return MFAMethodEmail
}

// SetupTOTP starts a TOTP enrollment: it generates a fresh secret and
// backup codes, stores them encrypted, and returns the one-time payload
// the client needs to show the user. The factor stays disabled until
// ActivateTOTP proves the user captured the secret.
func (e *MFAEngine) SetupTOTP(ctx context.Context, identity *Identity) (*TOTPSetup, error) {
	if identity.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	codes, err := totp.GenerateBackupCodes(e.backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	secretCT, err := e.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt totp secret: %w", err)
	}
	codesCT, err := e.cipher.Encrypt(strings.Join(codes, backupCodeSeparator))
	if err != nil {
		return nil, fmt.Errorf("encrypt backup codes: %w", err)
	}

	uri, err := totp.ProvisioningURI(totp.Params{
		Secret:      secret,
		AccountName: identity.Email,
		Issuer:      e.issuer,
	})
	if err != nil {
		return nil, err
	}
	qr, err := qrcode.DataURI(uri, e.qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}

	if err := e.store.SetTOTPSecret(ctx, identity.ID, secretCT, codesCT); err != nil {
		return nil, err
	}

	return &TOTPSetup{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
		BackupCodes:     codes,
	}, nil
}

// ActivateTOTP finalizes an enrollment by checking one code generated by
// the user's authenticator against the stored secret.
func (e *MFAEngine) ActivateTOTP(ctx context.Context, identity *Identity, code string, device DeviceMeta) error {
	if identity.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if identity.TOTPSecretCT == "" {
		return ErrMFANotEnabled
	}

	secret, err := e.cipher.Decrypt(identity.TOTPSecretCT)
	if err != nil {
		return fmt.Errorf("decrypt totp secret: %w", err)
	}

	ok, err := totp.ValidateCode(secret, code, e.clock())
	if err != nil {
		ok = false
	}
	e.logAttempt(ctx, identity.ID, MFAMethodTOTP, ok, device)
	if !ok {
		return ErrInvalidMFA
	}
	return e.store.EnableTOTP(ctx, identity.ID)
}

// DisableTOTP turns the factor off after a final proof of possession. The
// code may be a current TOTP code or an unused backup code; secret and
// backup codes are wiped together.
func (e *MFAEngine) DisableTOTP(ctx context.Context, identity *Identity, code string, device DeviceMeta) error {
	if !identity.TOTPEnabled {
		return ErrMFANotEnabled
	}
	if err := e.VerifyTOTP(ctx, identity, code, device); err != nil {
		return err
	}
	return e.store.DisableTOTP(ctx, identity.ID)
}

// VerifyTOTP checks code against the identity's secret, accepting codes
// from the adjacent time steps. When the code is not a valid TOTP code it
// falls back to the backup codes; a matching backup code is consumed.
func (e *MFAEngine) VerifyTOTP(ctx context.Context, identity *Identity, code string, device DeviceMeta) error {
	if !identity.TOTPEnabled {
		return ErrMFANotEnabled
	}

	secret, err := e.cipher.Decrypt(identity.TOTPSecretCT)
	if err != nil {
		return fmt.Errorf("decrypt totp secret: %w", err)
	}

	ok, err := totp.ValidateCode(secret, code, e.clock())
	if err != nil {
		ok = false
	}
	if ok {
		e.logAttempt(ctx, identity.ID, MFAMethodTOTP, true, device)
		return nil
	}

	if consumed, berr := e.consumeBackupCode(ctx, identity, code); berr == nil && consumed {
		e.logAttempt(ctx, identity.ID, MFAMethodBackup, true, device)
		return nil
	} else if berr != nil {
		return berr
	}

	e.logAttempt(ctx, identity.ID, MFAMethodTOTP, false, device)
	return ErrInvalidMFA
}

// VerifyBackupCode checks and consumes a single backup code.
func (e *MFAEngine) VerifyBackupCode(ctx context.Context, identity *Identity, code string, device DeviceMeta) error {
	if !identity.TOTPEnabled {
		return ErrMFANotEnabled
	}

	consumed, err := e.consumeBackupCode(ctx, identity, code)
	if err != nil {
		return err
	}
	e.logAttempt(ctx, identity.ID, MFAMethodBackup, consumed, device)
	if !consumed {
		return ErrInvalidMFA
	}
	return nil
}

// consumeBackupCode removes the matching code from the encrypted set and
// persists the shrunk remainder. Returns false when nothing matched.
func (e *MFAEngine) consumeBackupCode(ctx context.Context, identity *Identity, code string) (bool, error) {
	if identity.BackupCodesCT == "" {
		return false, nil
	}

	joined, err := e.cipher.Decrypt(identity.BackupCodesCT)
	if err != nil {
		return false, fmt.Errorf("decrypt backup codes: %w", err)
	}
	codes := splitBackupCodes(joined)

	idx, ok := totp.MatchBackupCode(codes, code)
	if !ok {
		return false, nil
	}

	remaining := append(codes[:idx:idx], codes[idx+1:]...)
	remainingCT, err := e.cipher.Encrypt(strings.Join(remaining, backupCodeSeparator))
	if err != nil {
		return false, fmt.Errorf("encrypt backup codes: %w", err)
	}
	if err := e.store.SetBackupCodes(ctx, identity.ID, remainingCT); err != nil {
		return false, err
	}
	identity.BackupCodesCT = remainingCT
	return true, nil
}

// RegenerateBackupCodes replaces the entire backup set with fresh codes
// after a current TOTP code proves possession. Previously issued codes
// stop working immediately.
func (e *MFAEngine) RegenerateBackupCodes(ctx context.Context, identity *Identity, code string, device DeviceMeta) ([]string, error) {
	if !identity.TOTPEnabled {
		return nil, ErrMFANotEnabled
	}
	if err := e.VerifyTOTP(ctx, identity, code, device); err != nil {
		return nil, err
	}

	codes, err := totp.GenerateBackupCodes(e.backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	codesCT, err := e.cipher.Encrypt(strings.Join(codes, backupCodeSeparator))
	if err != nil {
		return nil, fmt.Errorf("encrypt backup codes: %w", err)
	}
	if err := e.store.SetBackupCodes(ctx, identity.ID, codesCT); err != nil {
		return nil, err
	}
	return codes, nil
}

// EnableEmailMFA turns on emailed one-time codes. The delivery address
// must already be verified.
func (e *MFAEngine) EnableEmailMFA(ctx context.Context, identity *Identity) error {
	if !identity.EmailVerified {
		return ErrEmailNotVerified
	}
	return e.store.SetEmailMFA(ctx, identity.ID, true)
}

// DisableEmailMFA turns emailed codes off.
func (e *MFAEngine) DisableEmailMFA(ctx context.Context, identity *Identity) error {
	if !identity.EmailMFAEnabled {
		return ErrMFANotEnabled
	}
	return e.store.SetEmailMFA(ctx, identity.ID, false)
}

// SendEmailOTP issues a fresh sign-in code and mails it. Earlier unused
// codes stay valid until they expire on their own.
func (e *MFAEngine) SendEmailOTP(ctx context.Context, identity *Identity) error {
	if !identity.EmailMFAEnabled {
		return ErrMFANotEnabled
	}

	code, err := generateEmailOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), e.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	otp := &EmailOTP{
		IdentityID: identity.ID,
		CodeHash:   string(hash),
		ExpiresAt:  e.clock().Add(e.otpTTL),
	}
	if err := e.store.InsertEmailOTP(ctx, otp); err != nil {
		return err
	}

	msg := emailOTPEmail(e.appName, identity.Email, code)
	if err := e.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send otp mail: %w", err)
	}
	return nil
}

// VerifyEmailOTP checks code against the identity's outstanding emailed
// codes and consumes the one that matches.
func (e *MFAEngine) VerifyEmailOTP(ctx context.Context, identity *Identity, code string, device DeviceMeta) error {
	if !identity.EmailMFAEnabled {
		return ErrMFANotEnabled
	}

	matched, err := e.store.ConsumeEmailOTP(ctx, identity.ID, e.clock(), func(codeHash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(codeHash), []byte(code)) == nil
	})
	if err != nil {
		return err
	}
	e.logAttempt(ctx, identity.ID, MFAMethodEmail, matched, device)
	if !matched {
		return ErrInvalidMFA
	}
	return nil
}

// Verify dispatches to the verifier for method. Used by the login
// orchestrator when completing a challenge.
func (e *MFAEngine) Verify(ctx context.Context, identity *Identity, method MFAMethod, code string, device DeviceMeta) error {
	switch method {
	case MFAMethodTOTP:
		return e.VerifyTOTP(ctx, identity, code, device)
	case MFAMethodEmail:
		return e.VerifyEmailOTP(ctx, identity, code, device)
	case MFAMethodBackup:
		return e.VerifyBackupCode(ctx, identity, code, device)
	default:
		return ErrInvalidMFA
	}
}

// Status summarizes the identity's second-factor configuration.
func (e *MFAEngine) Status(identity *Identity) (*MFAStatus, error) {
	status := &MFAStatus{
		MFARequired:     identity.MFARequired(),
		TOTPEnabled:     identity.TOTPEnabled,
		EmailMFAEnabled: identity.EmailMFAEnabled,
	}
	if identity.TOTPEnabled && identity.BackupCodesCT != "" {
		joined, err := e.cipher.Decrypt(identity.BackupCodesCT)
		if err != nil {
			return nil, fmt.Errorf("decrypt backup codes: %w", err)
		}
		status.BackupCodesRemaining = len(splitBackupCodes(joined))
	}
	return status, nil
}

// logAttempt records one audit row. Failures are logged and swallowed so
// bookkeeping never blocks a verification result.
func (e *MFAEngine) logAttempt(ctx context.Context, identityID uuid.UUID, method MFAMethod, success bool, device DeviceMeta) {
	attempt := &MFAAttempt{
		IdentityID: identityID,
		Method:     method,
		Success:    success,
		IP:         device.IP,
		UserAgent:  device.UserAgent,
	}
	if err := e.store.AppendMFAAttempt(ctx, attempt); err != nil {
		e.log.ErrorContext(ctx, "failed to record mfa attempt",
			logger.Error(err),
			logger.IdentityID(identityID.String()),
		)
	}
}

func splitBackupCodes(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, backupCodeSeparator)
}

// generateEmailOTP draws a uniform 6-digit code.
func generateEmailOTP() (string, error) {
	n, err := rand.Int(rand.Reader, emailOTPBound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", emailOTPDigits, n.Int64()), nil
}
