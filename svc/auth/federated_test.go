package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/pkg/idp"
	"github.com/dmitrymomot/authd/svc/auth"
)

// stubVerifier maps opaque tokens to canned assertions.
type stubVerifier map[string]idp.Assertion

func (s stubVerifier) Verify(_ context.Context, token string) (idp.Assertion, error) {
	assertion, ok := s[token]
	if !ok {
		return idp.Assertion{}, errors.New("unknown token")
	}
	return assertion, nil
}

func googleAssertion(uid, email string) idp.Assertion {
	return idp.Assertion{
		ProviderUID:   uid,
		Email:         email,
		EmailVerified: true,
		DisplayName:   "Fed User",
		PictureURL:    "https://cdn.example.com/p.png",
		Provider:      "google",
	}
}

func TestFederatedAdapter_Provision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := auth.NewMemoryStore()
	adapter, err := auth.NewFederatedAdapter(store, stubVerifier{
		"tok": googleAssertion("google|123", "New.Person@Example.com"),
	})
	require.NoError(t, err)

	identity, err := adapter.Resolve(ctx, "tok")
	require.NoError(t, err)

	assert.Equal(t, "new.person@example.com", identity.Email)
	assert.Equal(t, "google|123", identity.FederatedID)
	assert.Equal(t, "google", identity.Provider)
	assert.Equal(t, auth.StatusActive, identity.Status)
	assert.True(t, identity.EmailVerified, "provider attested the email")
	assert.Equal(t, auth.KindIndividual, identity.Kind)
	assert.Equal(t, "+0000000000", identity.Phone)
	assert.Equal(t, "en", identity.Locale)
	assert.Equal(t, "USD", identity.Currency)
	assert.Empty(t, identity.PasswordHash)

	// Second resolve finds the same identity by federated id.
	again, err := adapter.Resolve(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, identity.ID, again.ID)
}

func TestFederatedAdapter_LinkByEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := auth.NewMemoryStore()
	adapter, err := auth.NewFederatedAdapter(store, stubVerifier{
		"tok": googleAssertion("google|456", "linked@example.com"),
	})
	require.NoError(t, err)

	existing := seedIdentity(t, store, "linked@example.com", "Password1!")

	identity, err := adapter.Resolve(ctx, "tok")
	require.NoError(t, err)

	assert.Equal(t, existing.ID, identity.ID)
	assert.Equal(t, "google|456", identity.FederatedID)
	assert.Equal(t, auth.ProviderBoth, identity.Provider, "password identity gains a second credential")
}

func TestFederatedAdapter_LinkVerifiesPendingEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := auth.NewMemoryStore()
	adapter, err := auth.NewFederatedAdapter(store, stubVerifier{
		"tok": googleAssertion("google|789", "pending@example.com"),
	})
	require.NoError(t, err)

	pending := &auth.Identity{
		Email:        "pending@example.com",
		Status:       auth.StatusPendingVerification,
		PasswordHash: hashPassword(t, "Password1!"),
	}
	require.NoError(t, store.CreateIdentity(ctx, pending))

	identity, err := adapter.Resolve(ctx, "tok")
	require.NoError(t, err)

	assert.True(t, identity.EmailVerified)
	assert.Equal(t, auth.StatusActive, identity.Status)
}

func TestFederatedAdapter_Refusals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := auth.NewMemoryStore()
	adapter, err := auth.NewFederatedAdapter(store, stubVerifier{
		"suspended": googleAssertion("google|s1", "suspended@example.com"),
		"bad":       {Provider: "google"}, // missing subject and email
	})
	require.NoError(t, err)

	suspended := &auth.Identity{
		Email:       "suspended@example.com",
		Status:      auth.StatusSuspended,
		FederatedID: "google|s1",
		Provider:    "google",
	}
	require.NoError(t, store.CreateIdentity(ctx, suspended))

	t.Run("suspended identity", func(t *testing.T) {
		_, err := adapter.Resolve(ctx, "suspended")
		require.ErrorIs(t, err, auth.ErrAccountInactive)
	})

	t.Run("unknown provider token", func(t *testing.T) {
		_, err := adapter.Resolve(ctx, "nope")
		require.ErrorIs(t, err, auth.ErrAssertionInvalid)
	})

	t.Run("incomplete assertion", func(t *testing.T) {
		_, err := adapter.Resolve(ctx, "bad")
		require.ErrorIs(t, err, auth.ErrAssertionInvalid)
	})
}
