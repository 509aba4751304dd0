package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/svc/auth"
)

var signingKey = []byte("test-signing-key-0123456789abcdef")

func newTokenService(t *testing.T, store auth.Store, clock *fakeClock, opts ...auth.TokenOption) *auth.TokenService {
	t.Helper()
	opts = append([]auth.TokenOption{auth.WithTokenClock(clock.Now)}, opts...)
	svc, err := auth.NewTokenService(store, signingKey, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService(t *testing.T) {
	t.Parallel()

	store := auth.NewMemoryStore()

	_, err := auth.NewTokenService(nil, signingKey)
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = auth.NewTokenService(store, nil)
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	svc, err := auth.NewTokenService(store, signingKey, auth.WithAccessTTL(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, svc.AccessTTL())
}

func TestTokenService_StartSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	svc := newTokenService(t, store, clock)
	identity := seedIdentity(t, store, "token@example.com", "Password1!")

	pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{IP: "10.0.0.1", UserAgent: "cli"})
	require.NoError(t, err)

	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64((30 * time.Minute).Seconds()), pair.ExpiresIn)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	// The access token carries the expected registered claims.
	var claims jwt.MapClaims
	_, _, err = jwt.NewParser().ParseUnverified(pair.AccessToken, &claims)
	require.NoError(t, err)
	assert.Equal(t, identity.ID.String(), claims["sub"])
	assert.Equal(t, identity.Email, claims["email"])
	assert.Equal(t, "access", claims["type"])

	// Session row anchors the refresh token.
	sessions, err := store.ListActiveSessions(ctx, identity.ID, clock.Now())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "10.0.0.1", sessions[0].DeviceMeta.IP)
}

func TestTokenService_VerifyAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	svc := newTokenService(t, store, clock)
	identity := seedIdentity(t, store, "access@example.com", "Password1!")

	pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{})
	require.NoError(t, err)

	t.Run("valid token resolves identity", func(t *testing.T) {
		got, err := svc.VerifyAccess(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, identity.ID, got.ID)
	})

	t.Run("refresh token is rejected", func(t *testing.T) {
		_, err := svc.VerifyAccess(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, auth.ErrTokenInvalid)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := svc.VerifyAccess(ctx, "not-a-token")
		require.ErrorIs(t, err, auth.ErrTokenInvalid)
	})

	t.Run("expired token maps to token_expired", func(t *testing.T) {
		clock.Advance(31 * time.Minute)
		defer clock.Advance(-31 * time.Minute)
		_, err := svc.VerifyAccess(ctx, pair.AccessToken)
		require.ErrorIs(t, err, auth.ErrTokenExpired)
	})
}

func TestTokenService_Refresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	svc := newTokenService(t, store, clock)
	identity := seedIdentity(t, store, "refresh@example.com", "Password1!")

	pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{IP: "10.0.0.9"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	next, got, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, got.ID)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// Single use: replaying the rotated token fails.
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrInvalidRefresh)

	// The new token keeps working and inherits the device meta.
	_, _, err = svc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestTokenService_RefreshRejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	svc := newTokenService(t, store, clock)
	identity := seedIdentity(t, store, "rr@example.com", "Password1!")

	t.Run("access token in refresh slot", func(t *testing.T) {
		pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{})
		require.NoError(t, err)
		_, _, err = svc.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, auth.ErrInvalidRefresh)
	})

	t.Run("revoked session", func(t *testing.T) {
		pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{})
		require.NoError(t, err)
		require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, auth.ErrInvalidRefresh)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{})
		require.NoError(t, err)
		clock.Advance(8 * 24 * time.Hour)
		defer clock.Advance(-8 * 24 * time.Hour)
		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, auth.ErrInvalidRefresh)
	})
}

func TestTokenService_Logout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	svc := newTokenService(t, store, clock)
	identity := seedIdentity(t, store, "logout@example.com", "Password1!")

	pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	// Idempotent.
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "unknown-token"))
}

func TestTokenService_Challenge(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	svc := newTokenService(t, store, clock)
	identity := seedIdentity(t, store, "challenge@example.com", "Password1!")

	token, err := svc.IssueChallenge(identity, auth.MFAMethodTOTP)
	require.NoError(t, err)

	challenge, err := svc.ParseChallenge(token)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, challenge.IdentityID)
	assert.Equal(t, identity.Email, challenge.Email)
	assert.Equal(t, auth.MFAMethodTOTP, challenge.MFAType)

	t.Run("expires after five minutes", func(t *testing.T) {
		clock.Advance(6 * time.Minute)
		defer clock.Advance(-6 * time.Minute)
		_, err := svc.ParseChallenge(token)
		require.ErrorIs(t, err, auth.ErrChallengeExpired)
	})

	t.Run("other families rejected", func(t *testing.T) {
		ctx := context.Background()
		pair, err := svc.StartSession(ctx, identity, auth.DeviceMeta{})
		require.NoError(t, err)
		_, err = svc.ParseChallenge(pair.AccessToken)
		require.ErrorIs(t, err, auth.ErrTokenInvalid)
	})
}

func TestTokenService_DeviceTrust(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	svc := newTokenService(t, store, clock)
	identity := seedIdentity(t, store, "trust@example.com", "Password1!")
	other := seedIdentity(t, store, "other@example.com", "Password1!")

	token, err := svc.IssueDeviceTrust(identity)
	require.NoError(t, err)

	assert.True(t, svc.VerifyDeviceTrust(token, identity.ID))
	assert.False(t, svc.VerifyDeviceTrust(token, other.ID), "trust is bound to one identity")
	assert.False(t, svc.VerifyDeviceTrust("garbage", identity.ID))

	t.Run("challenge token is not trust", func(t *testing.T) {
		challenge, err := svc.IssueChallenge(identity, auth.MFAMethodTOTP)
		require.NoError(t, err)
		assert.False(t, svc.VerifyDeviceTrust(challenge, identity.ID))
	})

	t.Run("expires after seven days", func(t *testing.T) {
		clock.Advance(8 * 24 * time.Hour)
		defer clock.Advance(-8 * 24 * time.Hour)
		assert.False(t, svc.VerifyDeviceTrust(token, identity.ID))
	})
}
