package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/svc/auth"
)

func TestMemoryStore_RotateSessionSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	identity := seedIdentity(t, store, "rotate@example.com", "Password1!")

	session := &auth.Session{
		IdentityID:       identity.ID,
		RefreshTokenHash: "hash-old",
		ExpiresAt:        clock.Now().Add(time.Hour),
	}
	require.NoError(t, store.InsertSession(ctx, session))

	next1 := &auth.Session{IdentityID: identity.ID, RefreshTokenHash: "hash-a", ExpiresAt: clock.Now().Add(time.Hour)}
	require.NoError(t, store.RotateSession(ctx, "hash-old", next1))

	// The second rotation of the same hash loses.
	next2 := &auth.Session{IdentityID: identity.ID, RefreshTokenHash: "hash-b", ExpiresAt: clock.Now().Add(time.Hour)}
	err := store.RotateSession(ctx, "hash-old", next2)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	_, err = store.FindActiveSession(ctx, "hash-old", clock.Now())
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
	_, err = store.FindActiveSession(ctx, "hash-a", clock.Now())
	require.NoError(t, err)
}

func TestMemoryStore_ConsumeEmailOTPNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	identity := seedIdentity(t, store, "otps@example.com", "Password1!")

	older := &auth.EmailOTP{IdentityID: identity.ID, CodeHash: "shared", ExpiresAt: clock.Now().Add(5 * time.Minute)}
	require.NoError(t, store.InsertEmailOTP(ctx, older))
	clock.Advance(time.Minute)
	newer := &auth.EmailOTP{IdentityID: identity.ID, CodeHash: "shared", ExpiresAt: clock.Now().Add(5 * time.Minute)}
	require.NoError(t, store.InsertEmailOTP(ctx, newer))

	// Both rows carry the same hash; the newer one must be consumed.
	matched, err := store.ConsumeEmailOTP(ctx, identity.ID, clock.Now(), func(hash string) bool {
		return hash == "shared"
	})
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = store.ConsumeEmailOTP(ctx, identity.ID, clock.Now(), func(hash string) bool {
		return hash == "shared"
	})
	require.NoError(t, err)
	require.True(t, matched, "the older code is still usable")

	matched, err = store.ConsumeEmailOTP(ctx, identity.ID, clock.Now(), func(hash string) bool {
		return hash == "shared"
	})
	require.NoError(t, err)
	assert.False(t, matched, "every code is consumed")
}

func TestMemoryStore_PruneEmailOTPs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := auth.NewMemoryStore(auth.WithMemoryClock(clock.Now))
	identity := seedIdentity(t, store, "prune@example.com", "Password1!")

	expired := &auth.EmailOTP{IdentityID: identity.ID, CodeHash: "dead", ExpiresAt: clock.Now().Add(-time.Minute)}
	live := &auth.EmailOTP{IdentityID: identity.ID, CodeHash: "live", ExpiresAt: clock.Now().Add(time.Minute)}
	require.NoError(t, store.InsertEmailOTP(ctx, expired))
	require.NoError(t, store.InsertEmailOTP(ctx, live))

	pruned, err := store.PruneEmailOTPs(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	matched, err := store.ConsumeEmailOTP(ctx, identity.ID, clock.Now(), func(hash string) bool {
		return hash == "live"
	})
	require.NoError(t, err)
	assert.True(t, matched)
}
