package auth

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time. Every expiry decision in the package
// reads through it so tests can drive time explicitly.
type Clock func() time.Time

// Status is the lifecycle state of an identity.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusSuspended           Status = "suspended"
)

// Kind distinguishes personal accounts from business ones.
type Kind string

const (
	KindIndividual Kind = "individual"
	KindBusiness   Kind = "business"
)

// Credential provider labels recorded on an identity. A federated label
// ("google", …) comes from the IdP verifier; ProviderBoth marks an
// identity that signs in with a password and a linked provider.
const (
	ProviderPassword = "password"
	ProviderBoth     = "both"
)

// MFAMethod names one second-factor mechanism.
type MFAMethod string

const (
	MFAMethodTOTP   MFAMethod = "totp"
	MFAMethodEmail  MFAMethod = "email"
	MFAMethodBackup MFAMethod = "backup"
)

// Identity is a persistent user record. Secret material (TOTPSecretCT,
// BackupCodesCT) is authenticated-encryption ciphertext and never leaves
// the MFA engine decrypted.
type Identity struct {
	ID          uuid.UUID
	Email       string // case-folded, unique among non-deleted
	Phone       string
	DisplayName string
	Kind        Kind
	Status      Status
	Locale      string
	Currency    string
	PictureURL  string

	PasswordHash string // empty for federated-only identities

	EmailVerified             bool
	EmailVerificationToken    string
	EmailVerificationExpires  time.Time
	PasswordResetToken        string
	PasswordResetTokenExpires time.Time

	FederatedID string // provider's stable uid, unique among non-deleted when present
	Provider    string

	TOTPSecretCT    string
	TOTPEnabled     bool
	BackupCodesCT   string
	EmailMFAEnabled bool

	FailedLoginCount int
	LockedUntil      time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
	DeletedAt   time.Time
}

// MFARequired reports whether login must pass a second factor.
func (i *Identity) MFARequired() bool {
	return i.TOTPEnabled || i.EmailMFAEnabled
}

// Locked reports whether the lockout window is still open at now.
func (i *Identity) Locked(now time.Time) bool {
	return !i.LockedUntil.IsZero() && i.LockedUntil.After(now)
}

// Profile is the non-sensitive projection of an identity returned to
// clients.
type Profile struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	Phone           string     `json:"phone,omitempty"`
	Kind            Kind       `json:"kind"`
	Status          Status     `json:"status"`
	Locale          string     `json:"locale,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	PictureURL      string     `json:"picture_url,omitempty"`
	EmailVerified   bool       `json:"email_verified"`
	TOTPEnabled     bool       `json:"totp_enabled"`
	EmailMFAEnabled bool       `json:"email_mfa_enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// Profile returns the client-safe projection of the identity.
func (i *Identity) Profile() Profile {
	p := Profile{
		ID:              i.ID,
		Email:           i.Email,
		DisplayName:     i.DisplayName,
		Phone:           i.Phone,
		Kind:            i.Kind,
		Status:          i.Status,
		Locale:          i.Locale,
		Currency:        i.Currency,
		PictureURL:      i.PictureURL,
		EmailVerified:   i.EmailVerified,
		TOTPEnabled:     i.TOTPEnabled,
		EmailMFAEnabled: i.EmailMFAEnabled,
		CreatedAt:       i.CreatedAt,
	}
	if !i.LastLoginAt.IsZero() {
		t := i.LastLoginAt
		p.LastLoginAt = &t
	}
	return p
}

// DeviceMeta is the opaque device context stored on a session and on MFA
// attempt rows.
type DeviceMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Session is the server-side row backing one issued refresh token. The
// token itself is never stored, only its SHA-256 hex digest.
type Session struct {
	ID               uuid.UUID
	IdentityID       uuid.UUID
	RefreshTokenHash string
	DeviceMeta       DeviceMeta
	IsActive         bool
	ExpiresAt        time.Time
	CreatedAt        time.Time
	LastUsedAt       time.Time
}

// EmailOTP is one transient email MFA code. CodeHash is a bcrypt hash;
// the plaintext exists only in the delivery mail.
type EmailOTP struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	CodeHash   string
	ExpiresAt  time.Time
	Used       bool
	CreatedAt  time.Time
}

// MFAAttempt is one append-only row of the verification audit log.
type MFAAttempt struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Method     MFAMethod
	Success    bool
	IP         string
	UserAgent  string
	CreatedAt  time.Time
}

// TokenPair is an issued access/refresh credential pair. ExpiresIn is the
// access-token lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResult is the tagged outcome of the login state machine: either a
// challenge (RequiresMFA with MFAType and ChallengeToken set) or a
// completed authentication (Tokens set, optionally DeviceTrustToken).
type LoginResult struct {
	RequiresMFA      bool
	MFAType          MFAMethod
	ChallengeToken   string
	Tokens           *TokenPair
	DeviceTrustToken string
	User             Profile
}

// TOTPSetup is the one-time enrollment payload. The secret and backup
// codes are shown exactly once; afterwards only ciphertext exists.
type TOTPSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          string   `json:"qr_code"` // PNG data URI of the provisioning URI
	BackupCodes     []string `json:"backup_codes"`
}

// MFAStatus summarizes which second factors an identity has enabled.
type MFAStatus struct {
	MFARequired          bool `json:"mfa_required"`
	TOTPEnabled          bool `json:"totp_enabled"`
	EmailMFAEnabled      bool `json:"email_mfa_enabled"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}
