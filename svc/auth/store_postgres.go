package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/authd/pkg/pg"
)

// PostgresStore is the production Store on a pgx connection pool.
// Multi-row writes run inside a transaction; single-row state changes
// lean on conditional UPDATEs so no read-modify-write races exist.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps the pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("pool is required"))
	}
	return &PostgresStore{pool: pool}, nil
}

var _ Store = (*PostgresStore)(nil)

// identityColumns is the canonical select list. Nullable text columns are
// coalesced to "" so the struct's zero-value convention holds.
const identityColumns = `
	id, email, phone, display_name, kind, status,
	coalesce(password_hash, ''),
	email_verified,
	coalesce(email_verification_token, ''), email_verification_expires_at,
	coalesce(password_reset_token, ''), password_reset_expires_at,
	coalesce(federated_id, ''), coalesce(provider, ''),
	coalesce(picture_url, ''), locale, currency,
	coalesce(totp_secret_ct, ''), totp_enabled,
	coalesce(backup_codes_ct, ''), email_mfa_enabled,
	failed_login_count, locked_until,
	created_at, updated_at, last_login_at, deleted_at`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var (
		i                                 Identity
		verifExp, resetExp                *time.Time
		lockedUntil, lastLogin, deletedAt *time.Time
	)
	err := row.Scan(
		&i.ID, &i.Email, &i.Phone, &i.DisplayName, &i.Kind, &i.Status,
		&i.PasswordHash,
		&i.EmailVerified,
		&i.EmailVerificationToken, &verifExp,
		&i.PasswordResetToken, &resetExp,
		&i.FederatedID, &i.Provider,
		&i.PictureURL, &i.Locale, &i.Currency,
		&i.TOTPSecretCT, &i.TOTPEnabled,
		&i.BackupCodesCT, &i.EmailMFAEnabled,
		&i.FailedLoginCount, &lockedUntil,
		&i.CreatedAt, &i.UpdatedAt, &lastLogin, &deletedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	i.EmailVerificationExpires = deref(verifExp)
	i.PasswordResetTokenExpires = deref(resetExp)
	i.LockedUntil = deref(lockedUntil)
	i.LastLoginAt = deref(lastLogin)
	i.DeletedAt = deref(deletedAt)
	return &i, nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// nullable maps the struct's "" convention back to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *PostgresStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	if identity.Kind == "" {
		identity.Kind = KindIndividual
	}
	if identity.Status == "" {
		identity.Status = StatusPendingVerification
	}
	if identity.Locale == "" {
		identity.Locale = "en"
	}
	if identity.Currency == "" {
		identity.Currency = "USD"
	}

	err := s.pool.QueryRow(ctx, `
		insert into identities (
			id, email, phone, display_name, kind, status,
			password_hash, email_verified,
			email_verification_token, email_verification_expires_at,
			federated_id, provider, picture_url, locale, currency
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		returning created_at, updated_at`,
		identity.ID, identity.Email, identity.Phone, identity.DisplayName,
		identity.Kind, identity.Status,
		nullable(identity.PasswordHash), identity.EmailVerified,
		nullable(identity.EmailVerificationToken), nullableTime(identity.EmailVerificationExpires),
		nullable(identity.FederatedID), nullable(identity.Provider),
		nullable(identity.PictureURL), identity.Locale, identity.Currency,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		// Covers both unique indexes (lower(email) and federated_id);
		// the duplicate federated_id case is only reachable through a
		// provisioning race, so one sentinel serves both.
		if pg.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) findIdentity(ctx context.Context, where string, args ...any) (*Identity, error) {
	query := `select ` + identityColumns + ` from identities where deleted_at is null and ` + where
	return scanIdentity(s.pool.QueryRow(ctx, query, args...))
}

func (s *PostgresStore) FindIdentityByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.findIdentity(ctx, `id = $1`, id)
}

func (s *PostgresStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.findIdentity(ctx, `lower(email) = lower($1)`, email)
}

func (s *PostgresStore) FindIdentityByFederatedID(ctx context.Context, federatedID string) (*Identity, error) {
	return s.findIdentity(ctx, `federated_id = $1`, federatedID)
}

func (s *PostgresStore) FindIdentityByVerificationToken(ctx context.Context, token string) (*Identity, error) {
	return s.findIdentity(ctx, `email_verification_token = $1`, token)
}

func (s *PostgresStore) FindIdentityByResetToken(ctx context.Context, token string) (*Identity, error) {
	return s.findIdentity(ctx, `password_reset_token = $1`, token)
}

// exec runs an identity UPDATE and maps "no row touched" to
// ErrIdentityNotFound.
func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*Identity, error) {
	var kind *string
	if patch.Kind != nil {
		k := string(*patch.Kind)
		kind = &k
	}

	// Nil patch fields become NULL args; coalesce keeps the stored value.
	row := s.pool.QueryRow(ctx, `
		update identities set
			display_name = coalesce($2, display_name),
			phone        = coalesce($3, phone),
			kind         = coalesce($4, kind),
			locale       = coalesce($5, locale),
			currency     = coalesce($6, currency),
			picture_url  = coalesce($7, picture_url),
			updated_at   = now()
		where id = $1 and deleted_at is null
		returning `+identityColumns,
		id, patch.DisplayName, patch.Phone, kind,
		patch.Locale, patch.Currency, patch.PictureURL,
	)
	return scanIdentity(row)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return s.exec(ctx, `
		update identities set
			password_hash = $2,
			password_reset_token = null,
			password_reset_expires_at = null,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id, passwordHash)
}

func (s *PostgresStore) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `
		update identities set
			email_verified = true,
			email_verification_token = null,
			email_verification_expires_at = null,
			status = case when status = 'pending_verification' then 'active' else status end,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id)
}

func (s *PostgresStore) SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return s.exec(ctx, `
		update identities set
			email_verification_token = $2,
			email_verification_expires_at = $3,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id, token, expiresAt)
}

func (s *PostgresStore) SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return s.exec(ctx, `
		update identities set
			password_reset_token = $2,
			password_reset_expires_at = $3,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id, token, expiresAt)
}

func (s *PostgresStore) RecordLoginSuccess(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `
		update identities set
			failed_login_count = 0,
			locked_until = null,
			last_login_at = now(),
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id)
}

func (s *PostgresStore) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		update identities set
			failed_login_count = failed_login_count + 1,
			locked_until = case
				when failed_login_count + 1 >= $2 then $3
				else locked_until
			end,
			updated_at = now()
		where id = $1 and deleted_at is null
		returning failed_login_count`,
		id, threshold, lockUntil,
	).Scan(&count)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return 0, ErrIdentityNotFound
		}
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) LinkFederatedID(ctx context.Context, id uuid.UUID, federatedID, provider string) error {
	return s.exec(ctx, `
		update identities set
			federated_id = $2,
			provider = $3,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id, federatedID, provider)
}

func (s *PostgresStore) SetTOTPSecret(ctx context.Context, id uuid.UUID, secretCT, backupCodesCT string) error {
	return s.exec(ctx, `
		update identities set
			totp_secret_ct = $2,
			backup_codes_ct = $3,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id, secretCT, backupCodesCT)
}

func (s *PostgresStore) EnableTOTP(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `
		update identities set
			totp_enabled = true,
			updated_at = now()
		where id = $1 and deleted_at is null and totp_secret_ct is not null`,
		id)
}

func (s *PostgresStore) DisableTOTP(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `
		update identities set
			totp_enabled = false,
			totp_secret_ct = null,
			backup_codes_ct = null,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id)
}

func (s *PostgresStore) SetBackupCodes(ctx context.Context, id uuid.UUID, backupCodesCT string) error {
	return s.exec(ctx, `
		update identities set
			backup_codes_ct = $2,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id, backupCodesCT)
}

func (s *PostgresStore) SetEmailMFA(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.exec(ctx, `
		update identities set
			email_mfa_enabled = $2,
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id, enabled)
}

func (s *PostgresStore) SoftDeleteIdentity(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `
		update identities set
			deleted_at = now(),
			status = 'inactive',
			updated_at = now()
		where id = $1 and deleted_at is null`,
		id)
}

func (s *PostgresStore) InsertSession(ctx context.Context, session *Session) error {
	return s.insertSession(ctx, s.pool, session)
}

// querier covers both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) insertSession(ctx context.Context, q querier, session *Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	meta, err := json.Marshal(session.DeviceMeta)
	if err != nil {
		return fmt.Errorf("marshal device meta: %w", err)
	}

	err = q.QueryRow(ctx, `
		insert into sessions (id, identity_id, refresh_token_hash, device_meta, is_active, expires_at)
		values ($1, $2, $3, $4, true, $5)
		returning created_at, last_used_at`,
		session.ID, session.IdentityID, session.RefreshTokenHash, meta, session.ExpiresAt,
	).Scan(&session.CreatedAt, &session.LastUsedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	session.IsActive = true
	return nil
}

func (s *PostgresStore) FindActiveSession(ctx context.Context, refreshHash string, now time.Time) (*Session, error) {
	var (
		session Session
		meta    []byte
	)
	err := s.pool.QueryRow(ctx, `
		select id, identity_id, refresh_token_hash, device_meta, is_active, expires_at, created_at, last_used_at
		from sessions
		where refresh_token_hash = $1 and is_active and expires_at > $2`,
		refreshHash, now,
	).Scan(
		&session.ID, &session.IdentityID, &session.RefreshTokenHash, &meta,
		&session.IsActive, &session.ExpiresAt, &session.CreatedAt, &session.LastUsedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &session.DeviceMeta); err != nil {
			return nil, fmt.Errorf("unmarshal device meta: %w", err)
		}
	}
	return &session, nil
}

func (s *PostgresStore) RotateSession(ctx context.Context, oldHash string, next *Session) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// The conditional deactivate is the race arbiter: of two
		// concurrent rotations exactly one sees is_active = true.
		tag, err := tx.Exec(ctx, `
			update sessions set is_active = false, last_used_at = now()
			where refresh_token_hash = $1 and is_active`,
			oldHash)
		if err != nil {
			return fmt.Errorf("deactivate session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSessionNotFound
		}
		return s.insertSession(ctx, tx, next)
	})
}

func (s *PostgresStore) DeactivateSession(ctx context.Context, refreshHash string) error {
	_, err := s.pool.Exec(ctx, `
		update sessions set is_active = false
		where refresh_token_hash = $1 and is_active`,
		refreshHash)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateSessionByID(ctx context.Context, identityID, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		update sessions set is_active = false
		where id = $1 and identity_id = $2`,
		sessionID, identityID)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) DeactivateAllSessions(ctx context.Context, identityID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		update sessions set is_active = false
		where identity_id = $1 and is_active`,
		identityID)
	if err != nil {
		return fmt.Errorf("deactivate sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateOtherSessions(ctx context.Context, identityID uuid.UUID, keepHash string) error {
	_, err := s.pool.Exec(ctx, `
		update sessions set is_active = false
		where identity_id = $1 and is_active and refresh_token_hash <> $2`,
		identityID, keepHash)
	if err != nil {
		return fmt.Errorf("deactivate sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveSessions(ctx context.Context, identityID uuid.UUID, now time.Time) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		select id, identity_id, refresh_token_hash, device_meta, is_active, expires_at, created_at, last_used_at
		from sessions
		where identity_id = $1 and is_active and expires_at > $2
		order by created_at desc`,
		identityID, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			session Session
			meta    []byte
		)
		if err := rows.Scan(
			&session.ID, &session.IdentityID, &session.RefreshTokenHash, &meta,
			&session.IsActive, &session.ExpiresAt, &session.CreatedAt, &session.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &session.DeviceMeta); err != nil {
				return nil, fmt.Errorf("unmarshal device meta: %w", err)
			}
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) InsertEmailOTP(ctx context.Context, otp *EmailOTP) error {
	if otp.ID == uuid.Nil {
		otp.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		insert into email_otps (id, identity_id, code_hash, expires_at)
		values ($1, $2, $3, $4)
		returning created_at`,
		otp.ID, otp.IdentityID, otp.CodeHash, otp.ExpiresAt,
	).Scan(&otp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email otp: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeEmailOTP(ctx context.Context, identityID uuid.UUID, now time.Time, verify func(codeHash string) bool) (bool, error) {
	var matched bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Row locks serialize concurrent consumers of the same code set.
		rows, err := tx.Query(ctx, `
			select id, code_hash from email_otps
			where identity_id = $1 and not used and expires_at > $2
			order by created_at desc
			for update`,
			identityID, now)
		if err != nil {
			return fmt.Errorf("select email otps: %w", err)
		}

		type candidate struct {
			id   uuid.UUID
			hash string
		}
		var candidates []candidate
		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.id, &c.hash); err != nil {
				rows.Close()
				return fmt.Errorf("scan email otp: %w", err)
			}
			candidates = append(candidates, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, c := range candidates {
			if verify(c.hash) {
				if _, err := tx.Exec(ctx, `update email_otps set used = true where id = $1`, c.id); err != nil {
					return fmt.Errorf("consume email otp: %w", err)
				}
				matched = true
				return nil
			}
		}
		return nil
	})
	return matched, err
}

func (s *PostgresStore) PruneEmailOTPs(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `delete from email_otps where expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("prune email otps: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) AppendMFAAttempt(ctx context.Context, attempt *MFAAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		insert into mfa_attempts (id, identity_id, method, success, ip, user_agent)
		values ($1, $2, $3, $4, nullif($5, '')::inet, nullif($6, ''))
		returning created_at`,
		attempt.ID, attempt.IdentityID, attempt.Method, attempt.Success,
		attempt.IP, attempt.UserAgent,
	).Scan(&attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert mfa attempt: %w", err)
	}
	return nil
}
