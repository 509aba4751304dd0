package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfilePatch is a partial identity update; nil fields are left alone.
type ProfilePatch struct {
	DisplayName *string
	Phone       *string
	Kind        *Kind
	Locale      *string
	Currency    *string
	PictureURL  *string
}

// Store is the transactional repository for the auth data model. It is the
// only component that mutates rows; everything else reads snapshots
// through it and requests mutations via these operations.
//
// Every write that spans more than one row (refresh rotation, email-OTP
// consumption, TOTP disable) executes atomically. Lookups never return
// soft-deleted identities.
type Store interface {
	// CreateIdentity inserts the record, failing with ErrEmailTaken when a
	// non-deleted identity already owns the email or the federated id
	// (both unique constraints report the same sentinel).
	CreateIdentity(ctx context.Context, identity *Identity) error
	FindIdentityByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	FindIdentityByFederatedID(ctx context.Context, federatedID string) (*Identity, error)
	FindIdentityByVerificationToken(ctx context.Context, token string) (*Identity, error)
	FindIdentityByResetToken(ctx context.Context, token string) (*Identity, error)

	// UpdateProfile applies the patch and returns the updated row.
	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*Identity, error)
	// UpdatePassword replaces the password hash and clears any pending
	// reset token.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// SetEmailVerified marks the email verified, clears the verification
	// token, and promotes a pending identity to active.
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error

	// RecordLoginSuccess resets the failure counter, clears the lockout,
	// and stamps last_login_at.
	RecordLoginSuccess(ctx context.Context, id uuid.UUID) error
	// RecordLoginFailure increments the failure counter in a single
	// conditional statement; when the new count reaches threshold the
	// lockout is set to lockUntil. Returns the updated count.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, error)

	// LinkFederatedID attaches a provider uid to an existing identity.
	LinkFederatedID(ctx context.Context, id uuid.UUID, federatedID, provider string) error

	// SetTOTPSecret stores freshly encrypted secret material for an
	// enrollment that is not yet finalized.
	SetTOTPSecret(ctx context.Context, id uuid.UUID, secretCT, backupCodesCT string) error
	EnableTOTP(ctx context.Context, id uuid.UUID) error
	// DisableTOTP clears the secret, the backup codes, and the enabled
	// flag in one write.
	DisableTOTP(ctx context.Context, id uuid.UUID) error
	SetBackupCodes(ctx context.Context, id uuid.UUID, backupCodesCT string) error
	SetEmailMFA(ctx context.Context, id uuid.UUID, enabled bool) error

	// SoftDeleteIdentity sets deleted_at and status inactive; the row is
	// retained for audit and invisible to every lookup above.
	SoftDeleteIdentity(ctx context.Context, id uuid.UUID) error

	InsertSession(ctx context.Context, session *Session) error
	// FindActiveSession returns the active, unexpired session owning the
	// refresh hash, or ErrSessionNotFound.
	FindActiveSession(ctx context.Context, refreshHash string, now time.Time) (*Session, error)
	// RotateSession atomically deactivates the session holding oldHash and
	// inserts next. Of two concurrent rotations for the same hash exactly
	// one succeeds; the loser gets ErrSessionNotFound.
	RotateSession(ctx context.Context, oldHash string, next *Session) error
	// DeactivateSession is idempotent: deactivating an unknown or already
	// inactive session is not an error.
	DeactivateSession(ctx context.Context, refreshHash string) error
	// DeactivateSessionByID deactivates one session owned by identityID,
	// or ErrSessionNotFound.
	DeactivateSessionByID(ctx context.Context, identityID, sessionID uuid.UUID) error
	DeactivateAllSessions(ctx context.Context, identityID uuid.UUID) error
	// DeactivateOtherSessions deactivates every active session of the
	// identity except the one holding keepHash.
	DeactivateOtherSessions(ctx context.Context, identityID uuid.UUID, keepHash string) error
	ListActiveSessions(ctx context.Context, identityID uuid.UUID, now time.Time) ([]Session, error)

	InsertEmailOTP(ctx context.Context, otp *EmailOTP) error
	// ConsumeEmailOTP scans the identity's unused, unexpired codes newest
	// first and flips used=true on the first row whose hash satisfies
	// verify, all in one serialized write. Returns false when no code
	// matched.
	ConsumeEmailOTP(ctx context.Context, identityID uuid.UUID, now time.Time, verify func(codeHash string) bool) (bool, error)
	// PruneEmailOTPs deletes expired rows and returns how many went.
	PruneEmailOTPs(ctx context.Context, now time.Time) (int64, error)

	// AppendMFAAttempt inserts one audit row; attempts are never updated.
	AppendMFAAttempt(ctx context.Context, attempt *MFAAttempt) error
}
