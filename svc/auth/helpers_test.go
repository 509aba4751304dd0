package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authd/pkg/mailer"
	"github.com/dmitrymomot/authd/pkg/secrets"
	"github.com/dmitrymomot/authd/svc/auth"
)

// fakeClock is a settable time source shared by every component under
// test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mailerStub records outbound messages and optionally fails.
type mailerStub struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail error
}

func (m *mailerStub) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailerStub) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

func (m *mailerStub) last(t *testing.T) mailer.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "expected at least one sent message")
	return m.sent[len(m.sent)-1]
}

func testCipher(t *testing.T) *secrets.Cipher {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	cipher, err := secrets.New("v1", key)
	require.NoError(t, err)
	return cipher
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

// seedIdentity inserts an active, verified password identity.
func seedIdentity(t *testing.T, store auth.Store, email, password string) *auth.Identity {
	t.Helper()
	identity := &auth.Identity{
		Email:         email,
		DisplayName:   "Test User",
		Kind:          auth.KindIndividual,
		Status:        auth.StatusActive,
		PasswordHash:  hashPassword(t, password),
		Provider:      auth.ProviderPassword,
		EmailVerified: true,
	}
	require.NoError(t, store.CreateIdentity(context.Background(), identity))
	return identity
}
