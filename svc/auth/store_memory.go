package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by unit tests and credential-less
// development setups. A single mutex serializes every operation, which
// trivially satisfies the one-row-one-writer policy the Postgres
// implementation gets from its transactions.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[uuid.UUID]*Identity
	sessions   map[string]*Session // keyed by refresh token hash
	otps       []*EmailOTP
	attempts   []*MFAAttempt
	clock      Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock injects the time source used for row timestamps.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		identities: make(map[uuid.UUID]*Identity),
		sessions:   make(map[string]*Session),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateIdentity(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.identities {
		if !existing.DeletedAt.IsZero() {
			continue
		}
		// Both unique constraints collapse to ErrEmailTaken, matching
		// the Postgres store, which cannot tell the violated index
		// apart without inspecting constraint names.
		if existing.Email == identity.Email {
			return ErrEmailTaken
		}
		if identity.FederatedID != "" && existing.FederatedID == identity.FederatedID {
			return ErrEmailTaken
		}
	}

	now := s.clock()
	clone := *identity
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	s.identities[clone.ID] = &clone

	*identity = clone
	return nil
}

func (s *MemoryStore) FindIdentityByID(_ context.Context, id uuid.UUID) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(i *Identity) bool { return i.ID == id })
}

func (s *MemoryStore) FindIdentityByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(i *Identity) bool { return i.Email == email })
}

func (s *MemoryStore) FindIdentityByFederatedID(_ context.Context, federatedID string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(i *Identity) bool {
		return i.FederatedID != "" && i.FederatedID == federatedID
	})
}

func (s *MemoryStore) FindIdentityByVerificationToken(_ context.Context, token string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(i *Identity) bool {
		return i.EmailVerificationToken != "" && i.EmailVerificationToken == token
	})
}

func (s *MemoryStore) FindIdentityByResetToken(_ context.Context, token string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(i *Identity) bool {
		return i.PasswordResetToken != "" && i.PasswordResetToken == token
	})
}

// findLocked returns a copy of the first non-deleted identity matching the
// predicate. Callers hold the mutex.
func (s *MemoryStore) findLocked(match func(*Identity) bool) (*Identity, error) {
	for _, identity := range s.identities {
		if identity.DeletedAt.IsZero() && match(identity) {
			clone := *identity
			return &clone, nil
		}
	}
	return nil, ErrIdentityNotFound
}

// mutateLocked applies fn to the live non-deleted row and stamps
// updated_at. Callers hold the mutex.
func (s *MemoryStore) mutateLocked(id uuid.UUID, fn func(*Identity)) error {
	identity, ok := s.identities[id]
	if !ok || !identity.DeletedAt.IsZero() {
		return ErrIdentityNotFound
	}
	fn(identity)
	identity.UpdatedAt = s.clock()
	return nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id uuid.UUID, patch ProfilePatch) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutateLocked(id, func(i *Identity) {
		if patch.DisplayName != nil {
			i.DisplayName = *patch.DisplayName
		}
		if patch.Phone != nil {
			i.Phone = *patch.Phone
		}
		if patch.Kind != nil {
			i.Kind = *patch.Kind
		}
		if patch.Locale != nil {
			i.Locale = *patch.Locale
		}
		if patch.Currency != nil {
			i.Currency = *patch.Currency
		}
		if patch.PictureURL != nil {
			i.PictureURL = *patch.PictureURL
		}
	})
	if err != nil {
		return nil, err
	}
	clone := *s.identities[id]
	return &clone, nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.PasswordHash = passwordHash
		i.PasswordResetToken = ""
		i.PasswordResetTokenExpires = time.Time{}
	})
}

func (s *MemoryStore) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.EmailVerified = true
		i.EmailVerificationToken = ""
		i.EmailVerificationExpires = time.Time{}
		if i.Status == StatusPendingVerification {
			i.Status = StatusActive
		}
	})
}

func (s *MemoryStore) SetVerificationToken(_ context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.EmailVerificationToken = token
		i.EmailVerificationExpires = expiresAt
	})
}

func (s *MemoryStore) SetPasswordResetToken(_ context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.PasswordResetToken = token
		i.PasswordResetTokenExpires = expiresAt
	})
}

func (s *MemoryStore) RecordLoginSuccess(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.FailedLoginCount = 0
		i.LockedUntil = time.Time{}
		i.LastLoginAt = s.clock()
	})
}

func (s *MemoryStore) RecordLoginFailure(_ context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.mutateLocked(id, func(i *Identity) {
		i.FailedLoginCount++
		if i.FailedLoginCount >= threshold {
			i.LockedUntil = lockUntil
		}
		count = i.FailedLoginCount
	})
	return count, err
}

func (s *MemoryStore) LinkFederatedID(_ context.Context, id uuid.UUID, federatedID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.FederatedID = federatedID
		i.Provider = provider
	})
}

func (s *MemoryStore) SetTOTPSecret(_ context.Context, id uuid.UUID, secretCT, backupCodesCT string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.TOTPSecretCT = secretCT
		i.BackupCodesCT = backupCodesCT
	})
}

func (s *MemoryStore) EnableTOTP(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.TOTPEnabled = true
	})
}

func (s *MemoryStore) DisableTOTP(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.TOTPEnabled = false
		i.TOTPSecretCT = ""
		i.BackupCodesCT = ""
	})
}

func (s *MemoryStore) SetBackupCodes(_ context.Context, id uuid.UUID, backupCodesCT string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.BackupCodesCT = backupCodesCT
	})
}

func (s *MemoryStore) SetEmailMFA(_ context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.EmailMFAEnabled = enabled
	})
}

func (s *MemoryStore) SoftDeleteIdentity(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, func(i *Identity) {
		i.DeletedAt = s.clock()
		i.Status = StatusInactive
	})
}

func (s *MemoryStore) InsertSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertSessionLocked(session)
}

func (s *MemoryStore) insertSessionLocked(session *Session) error {
	if _, exists := s.sessions[session.RefreshTokenHash]; exists {
		return ErrSessionNotFound
	}

	now := s.clock()
	clone := *session
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.LastUsedAt = now
	clone.IsActive = true
	s.sessions[clone.RefreshTokenHash] = &clone

	*session = clone
	return nil
}

func (s *MemoryStore) FindActiveSession(_ context.Context, refreshHash string, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[refreshHash]
	if !ok || !session.IsActive || !session.ExpiresAt.After(now) {
		return nil, ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *MemoryStore) RotateSession(_ context.Context, oldHash string, next *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[oldHash]
	if !ok || !old.IsActive {
		return ErrSessionNotFound
	}
	old.IsActive = false
	return s.insertSessionLocked(next)
}

func (s *MemoryStore) DeactivateSession(_ context.Context, refreshHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[refreshHash]; ok {
		session.IsActive = false
	}
	return nil
}

func (s *MemoryStore) DeactivateSessionByID(_ context.Context, identityID, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.ID == sessionID && session.IdentityID == identityID {
			session.IsActive = false
			return nil
		}
	}
	return ErrSessionNotFound
}

func (s *MemoryStore) DeactivateAllSessions(_ context.Context, identityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.IdentityID == identityID {
			session.IsActive = false
		}
	}
	return nil
}

func (s *MemoryStore) DeactivateOtherSessions(_ context.Context, identityID uuid.UUID, keepHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, session := range s.sessions {
		if session.IdentityID == identityID && hash != keepHash {
			session.IsActive = false
		}
	}
	return nil
}

func (s *MemoryStore) ListActiveSessions(_ context.Context, identityID uuid.UUID, now time.Time) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []Session
	for _, session := range s.sessions {
		if session.IdentityID == identityID && session.IsActive && session.ExpiresAt.After(now) {
			sessions = append(sessions, *session)
		}
	}
	sort.Slice(sessions, func(a, b int) bool {
		return sessions[a].CreatedAt.After(sessions[b].CreatedAt)
	})
	return sessions, nil
}

func (s *MemoryStore) InsertEmailOTP(_ context.Context, otp *EmailOTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *otp
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = s.clock()
	}
	s.otps = append(s.otps, &clone)

	*otp = clone
	return nil
}

func (s *MemoryStore) ConsumeEmailOTP(_ context.Context, identityID uuid.UUID, now time.Time, verify func(codeHash string) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first: the most recently issued usable code is preferred, but
	// older unexpired codes remain individually verifiable.
	candidates := make([]*EmailOTP, 0, len(s.otps))
	for _, otp := range s.otps {
		if otp.IdentityID == identityID && !otp.Used && otp.ExpiresAt.After(now) {
			candidates = append(candidates, otp)
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].CreatedAt.After(candidates[b].CreatedAt)
	})

	for _, otp := range candidates {
		if verify(otp.CodeHash) {
			otp.Used = true
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) PruneEmailOTPs(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.otps[:0]
	var pruned int64
	for _, otp := range s.otps {
		if otp.ExpiresAt.After(now) {
			kept = append(kept, otp)
		} else {
			pruned++
		}
	}
	s.otps = kept
	return pruned, nil
}

func (s *MemoryStore) AppendMFAAttempt(_ context.Context, attempt *MFAAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *attempt
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = s.clock()
	}
	s.attempts = append(s.attempts, &clone)

	*attempt = clone
	return nil
}

// MFAAttempts returns a snapshot of the attempt log for tests.
func (s *MemoryStore) MFAAttempts(identityID uuid.UUID) []MFAAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	var attempts []MFAAttempt
	for _, attempt := range s.attempts {
		if attempt.IdentityID == identityID {
			attempts = append(attempts, *attempt)
		}
	}
	return attempts
}
