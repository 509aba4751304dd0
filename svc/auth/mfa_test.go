package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/pkg/totp"
	"github.com/dmitrymomot/authd/svc/auth"
)

func newMFAEngine(t *testing.T, store auth.Store, clock *fakeClock, m *mailerStub) *auth.MFAEngine {
	t.Helper()
	engine, err := auth.NewMFAEngine(store, testCipher(t), m, "authd", "Authd",
		auth.WithMFAClock(clock.Now),
		auth.WithBcryptCost(4),
	)
	require.NoError(t, err)
	return engine
}

// enrollTOTP walks a full enrollment and returns the plaintext secret and
// backup codes together with the refreshed identity.
func enrollTOTP(t *testing.T, engine *auth.MFAEngine, store auth.Store, clock *fakeClock, identity *auth.Identity) (*auth.TOTPSetup, *auth.Identity) {
	t.Helper()
	ctx := context.Background()

	setup, err := engine.SetupTOTP(ctx, identity)
	require.NoError(t, err)

	identity, err = store.FindIdentityByID(ctx, identity.ID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, clock.Now())
	require.NoError(t, err)
	require.NoError(t, engine.ActivateTOTP(ctx, identity, code, auth.DeviceMeta{}))

	identity, err = store.FindIdentityByID(ctx, identity.ID)
	require.NoError(t, err)
	require.True(t, identity.TOTPEnabled)
	return setup, identity
}

func TestMFAEngine_SetupTOTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	engine := newMFAEngine(t, store, clock, &mailerStub{})
	identity := seedIdentity(t, store, "totp@example.com", "Password1!")

	setup, err := engine.SetupTOTP(ctx, identity)
	require.NoError(t, err)

	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, setup.ProvisioningURI, "issuer=authd")
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	assert.Len(t, setup.BackupCodes, 10)
	for _, code := range setup.BackupCodes {
		assert.Len(t, code, 8)
	}

	// Secret material is stored encrypted, never as written.
	stored, err := store.FindIdentityByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.TOTPSecretCT)
	assert.NotContains(t, stored.TOTPSecretCT, setup.Secret)
	assert.False(t, stored.TOTPEnabled, "setup alone must not enable the factor")
}

func TestMFAEngine_ActivateTOTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	engine := newMFAEngine(t, store, clock, &mailerStub{})
	identity := seedIdentity(t, store, "activate@example.com", "Password1!")

	t.Run("without setup", func(t *testing.T) {
		err := engine.ActivateTOTP(ctx, identity, "123456", auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrMFANotEnabled)
	})

	setup, err := engine.SetupTOTP(ctx, identity)
	require.NoError(t, err)
	identity, err = store.FindIdentityByID(ctx, identity.ID)
	require.NoError(t, err)

	t.Run("wrong code", func(t *testing.T) {
		err := engine.ActivateTOTP(ctx, identity, "000000", auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrInvalidMFA)
	})

	t.Run("valid code enables", func(t *testing.T) {
		code, err := totp.GenerateCode(setup.Secret, clock.Now())
		require.NoError(t, err)
		require.NoError(t, engine.ActivateTOTP(ctx, identity, code, auth.DeviceMeta{}))

		stored, err := store.FindIdentityByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.True(t, stored.TOTPEnabled)
	})

	t.Run("second setup refused once enabled", func(t *testing.T) {
		stored, err := store.FindIdentityByID(ctx, identity.ID)
		require.NoError(t, err)
		_, err = engine.SetupTOTP(ctx, stored)
		require.ErrorIs(t, err, auth.ErrTOTPAlreadyEnabled)
	})
}

func TestMFAEngine_VerifyTOTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	engine := newMFAEngine(t, store, clock, &mailerStub{})
	identity := seedIdentity(t, store, "verify@example.com", "Password1!")
	setup, identity := enrollTOTP(t, engine, store, clock, identity)

	t.Run("current code", func(t *testing.T) {
		code, err := totp.GenerateCode(setup.Secret, clock.Now())
		require.NoError(t, err)
		require.NoError(t, engine.VerifyTOTP(ctx, identity, code, auth.DeviceMeta{}))
	})

	t.Run("adjacent step accepted", func(t *testing.T) {
		code, err := totp.GenerateCode(setup.Secret, clock.Now().Add(-30*time.Second))
		require.NoError(t, err)
		require.NoError(t, engine.VerifyTOTP(ctx, identity, code, auth.DeviceMeta{}))
	})

	t.Run("two steps off rejected", func(t *testing.T) {
		code, err := totp.GenerateCode(setup.Secret, clock.Now().Add(-90*time.Second))
		require.NoError(t, err)
		err = engine.VerifyTOTP(ctx, identity, code, auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrInvalidMFA)
	})

	t.Run("attempts are logged", func(t *testing.T) {
		attempts := store.MFAAttempts(identity.ID)
		require.NotEmpty(t, attempts)
	})
}

func TestMFAEngine_BackupCodes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	engine := newMFAEngine(t, store, clock, &mailerStub{})
	identity := seedIdentity(t, store, "backup@example.com", "Password1!")
	setup, identity := enrollTOTP(t, engine, store, clock, identity)

	backup := setup.BackupCodes[0]

	// A backup code passes where the TOTP code slot expects one.
	require.NoError(t, engine.VerifyTOTP(ctx, identity, backup, auth.DeviceMeta{}))

	// Consumed: the same code never works twice.
	identity, err := store.FindIdentityByID(ctx, identity.ID)
	require.NoError(t, err)
	err = engine.VerifyTOTP(ctx, identity, backup, auth.DeviceMeta{})
	require.ErrorIs(t, err, auth.ErrInvalidMFA)

	status, err := engine.Status(identity)
	require.NoError(t, err)
	assert.Equal(t, 9, status.BackupCodesRemaining)

	t.Run("explicit backup verification", func(t *testing.T) {
		require.NoError(t, engine.VerifyBackupCode(ctx, identity, setup.BackupCodes[1], auth.DeviceMeta{}))
	})

	t.Run("regenerate invalidates old codes", func(t *testing.T) {
		identity, err := store.FindIdentityByID(ctx, identity.ID)
		require.NoError(t, err)

		code, err := totp.GenerateCode(setup.Secret, clock.Now())
		require.NoError(t, err)
		fresh, err := engine.RegenerateBackupCodes(ctx, identity, code, auth.DeviceMeta{})
		require.NoError(t, err)
		require.Len(t, fresh, 10)

		identity, err = store.FindIdentityByID(ctx, identity.ID)
		require.NoError(t, err)
		err = engine.VerifyBackupCode(ctx, identity, setup.BackupCodes[2], auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrInvalidMFA)
		require.NoError(t, engine.VerifyBackupCode(ctx, identity, fresh[0], auth.DeviceMeta{}))
	})
}

func TestMFAEngine_DisableTOTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	engine := newMFAEngine(t, store, clock, &mailerStub{})
	identity := seedIdentity(t, store, "disable@example.com", "Password1!")
	setup, identity := enrollTOTP(t, engine, store, clock, identity)

	t.Run("wrong code keeps it on", func(t *testing.T) {
		err := engine.DisableTOTP(ctx, identity, "000000", auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrInvalidMFA)
	})

	t.Run("valid code wipes everything", func(t *testing.T) {
		code, err := totp.GenerateCode(setup.Secret, clock.Now())
		require.NoError(t, err)
		require.NoError(t, engine.DisableTOTP(ctx, identity, code, auth.DeviceMeta{}))

		stored, err := store.FindIdentityByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.False(t, stored.TOTPEnabled)
		assert.Empty(t, stored.TOTPSecretCT)
		assert.Empty(t, stored.BackupCodesCT)

		// A second disable has no secret left to verify against.
		code2, err := totp.GenerateCode(setup.Secret, clock.Now())
		require.NoError(t, err)
		err = engine.DisableTOTP(ctx, stored, code2, auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrMFANotEnabled)
	})
}

func TestMFAEngine_EmailOTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	mails := &mailerStub{}
	engine := newMFAEngine(t, store, clock, mails)
	identity := seedIdentity(t, store, "otp@example.com", "Password1!")

	t.Run("send requires enrollment", func(t *testing.T) {
		err := engine.SendEmailOTP(ctx, identity)
		require.ErrorIs(t, err, auth.ErrMFANotEnabled)
	})

	require.NoError(t, engine.EnableEmailMFA(ctx, identity))
	identity, err := store.FindIdentityByID(ctx, identity.ID)
	require.NoError(t, err)
	require.True(t, identity.EmailMFAEnabled)

	require.NoError(t, engine.SendEmailOTP(ctx, identity))
	code := extractOTP(t, mails.last(t).BodyText)

	t.Run("wrong code", func(t *testing.T) {
		err := engine.VerifyEmailOTP(ctx, identity, "000000", auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrInvalidMFA)
	})

	t.Run("valid code consumed once", func(t *testing.T) {
		require.NoError(t, engine.VerifyEmailOTP(ctx, identity, code, auth.DeviceMeta{}))
		err := engine.VerifyEmailOTP(ctx, identity, code, auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrInvalidMFA)
	})

	t.Run("earlier unused code stays valid after resend", func(t *testing.T) {
		require.NoError(t, engine.SendEmailOTP(ctx, identity))
		first := extractOTP(t, mails.last(t).BodyText)
		require.NoError(t, engine.SendEmailOTP(ctx, identity))

		require.NoError(t, engine.VerifyEmailOTP(ctx, identity, first, auth.DeviceMeta{}))
	})

	t.Run("expired code rejected", func(t *testing.T) {
		require.NoError(t, engine.SendEmailOTP(ctx, identity))
		code := extractOTP(t, mails.last(t).BodyText)
		clock.Advance(6 * time.Minute)
		defer clock.Advance(-6 * time.Minute)
		err := engine.VerifyEmailOTP(ctx, identity, code, auth.DeviceMeta{})
		require.ErrorIs(t, err, auth.ErrInvalidMFA)
	})

	t.Run("disable", func(t *testing.T) {
		require.NoError(t, engine.DisableEmailMFA(ctx, identity))
		stored, err := store.FindIdentityByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.False(t, stored.EmailMFAEnabled)
	})
}

func TestMFAEngine_EnableEmailMFARequiresVerifiedEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	engine := newMFAEngine(t, store, clock, &mailerStub{})

	identity := &auth.Identity{
		Email:        "unverified@example.com",
		Status:       auth.StatusPendingVerification,
		PasswordHash: hashPassword(t, "Password1!"),
	}
	require.NoError(t, store.CreateIdentity(ctx, identity))

	err := engine.EnableEmailMFA(ctx, identity)
	require.ErrorIs(t, err, auth.ErrEmailNotVerified)
}

// extractOTP pulls the 6-digit code out of the plain-text OTP mail.
func extractOTP(t *testing.T, body string) string {
	t.Helper()
	const marker = "sign-in code is: "
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0, "otp mail body %q", body)
	code := body[idx+len(marker) : idx+len(marker)+6]
	require.Len(t, code, 6)
	return code
}
