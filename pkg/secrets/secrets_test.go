package secrets_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/pkg/secrets"
)

func newCipher(t *testing.T, keyID string) *secrets.Cipher {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	c, err := secrets.New(keyID, key)
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	t.Parallel()
	c := newCipher(t, "v1")

	tests := []string{
		"JBSWY3DPEHPK3PXP",
		"12345678,87654321,11112222",
		"",
		"unicode ✓ payload",
	}

	for _, plaintext := range tests {
		ct, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ct, "v1:"), "ciphertext %q should carry the key id", ct)

		got, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCipher_CiphertextsDiffer(t *testing.T) {
	t.Parallel()
	c := newCipher(t, "v1")

	first, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	// Fresh nonce per call.
	assert.NotEqual(t, first, second)
}

func TestCipher_WrongKey(t *testing.T) {
	t.Parallel()
	a := newCipher(t, "v1")
	b := newCipher(t, "v1")

	ct, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(ct)
	assert.ErrorIs(t, err, secrets.ErrDecryptFailed)
}

func TestCipher_Tampered(t *testing.T) {
	t.Parallel()
	c := newCipher(t, "v1")

	ct, err := c.Encrypt("secret")
	require.NoError(t, err)

	tampered := ct[:len(ct)-2] + "AA"
	if tampered == ct {
		tampered = ct[:len(ct)-2] + "BB"
	}
	_, err = c.Decrypt(tampered)
	assert.Error(t, err)
}

func TestCipher_UnknownKeyID(t *testing.T) {
	t.Parallel()
	c := newCipher(t, "v2")

	ct, err := c.Encrypt("secret")
	require.NoError(t, err)

	other := newCipher(t, "v1")
	_, err = other.Decrypt(ct)
	assert.ErrorIs(t, err, secrets.ErrUnknownKeyID)
}

func TestCipher_RetiredKey(t *testing.T) {
	t.Parallel()
	oldKey, err := secrets.GenerateKey()
	require.NoError(t, err)
	oldCipher, err := secrets.New("v1", oldKey)
	require.NoError(t, err)

	ct, err := oldCipher.Encrypt("carried over")
	require.NoError(t, err)

	newKey, err := secrets.GenerateKey()
	require.NoError(t, err)
	rotated, err := secrets.New("v2", newKey, secrets.WithRetiredKey("v1", oldKey))
	require.NoError(t, err)

	got, err := rotated.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "carried over", got)

	fresh, err := rotated.Encrypt("new material")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fresh, "v2:"))
}

func TestCipher_InvalidCiphertext(t *testing.T) {
	t.Parallel()
	c := newCipher(t, "v1")

	tests := []struct {
		name string
		ct   string
		want error
	}{
		{"no separator", "deadbeef", secrets.ErrInvalidCiphertext},
		{"empty payload", "v1:", secrets.ErrInvalidCiphertext},
		{"empty key id", ":deadbeef", secrets.ErrInvalidCiphertext},
		{"bad base64", "v1:%%%", secrets.ErrInvalidCiphertext},
		{"too short", "v1:AAAA", secrets.ErrDecryptFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.Decrypt(tt.ct)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	_, err = secrets.New("", key)
	assert.ErrorIs(t, err, secrets.ErrInvalidKeyID)

	_, err = secrets.New("v:1", key)
	assert.ErrorIs(t, err, secrets.ErrInvalidKeyID)

	_, err = secrets.New("v1", key[:16])
	assert.ErrorIs(t, err, secrets.ErrInvalidKeyLength)

	_, err = secrets.New("v1", key, secrets.WithRetiredKey("v0", key[:8]))
	assert.ErrorIs(t, err, secrets.ErrInvalidKeyLength)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	encoded, err := secrets.GenerateEncodedKey()
	require.NoError(t, err)

	key, err := secrets.ParseKey(encoded)
	require.NoError(t, err)
	assert.Len(t, key, secrets.KeySize)

	_, err = secrets.ParseKey("")
	assert.ErrorIs(t, err, secrets.ErrKeyNotSet)

	_, err = secrets.ParseKey("not base64 !!!")
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)

	_, err = secrets.ParseKey("c2hvcnQ=")
	assert.ErrorIs(t, err, secrets.ErrInvalidKeyLength)
}
