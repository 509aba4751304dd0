package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"regexp"
	"strings"
)

// KeySize is the required key length for AES-256.
const KeySize = 32

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Cipher encrypts and decrypts short secrets with AES-256-GCM. Every
// ciphertext is prefixed with the id of the key that produced it, so keys
// can later be rotated by registering the retired key for decryption and
// re-encrypting rows as they are touched.
type Cipher struct {
	keyID string
	keys  map[string][]byte
}

// Option configures a Cipher during construction.
type Option func(*Cipher)

// WithRetiredKey registers an additional key used only for decrypting
// ciphertexts produced before a rotation.
func WithRetiredKey(keyID string, key []byte) Option {
	return func(c *Cipher) {
		c.keys[keyID] = key
	}
}

// New returns a Cipher that encrypts under key, tagging ciphertexts with keyID.
func New(keyID string, key []byte, opts ...Option) (*Cipher, error) {
	if !keyIDPattern.MatchString(keyID) {
		return nil, ErrInvalidKeyID
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	c := &Cipher{
		keyID: keyID,
		keys:  map[string][]byte{keyID: key},
	}
	for _, opt := range opts {
		opt(c)
	}

	for id, k := range c.keys {
		if !keyIDPattern.MatchString(id) {
			return nil, ErrInvalidKeyID
		}
		if len(k) != KeySize {
			return nil, ErrInvalidKeyLength
		}
	}
	return c, nil
}

// NewFromConfig builds a Cipher from environment configuration.
func NewFromConfig(cfg Config) (*Cipher, error) {
	key, err := ParseKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	return New(cfg.KeyID, key)
}

// KeyID reports the id used for newly produced ciphertexts.
func (c *Cipher) KeyID() string { return c.keyID }

// Encrypt seals plaintext and returns "<key-id>:<base64(nonce||ciphertext)>".
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aesGCM, err := c.gcm(c.keyID)
	if err != nil {
		return "", errors.Join(ErrEncryptFailed, err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptFailed, err)
	}

	sealed := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return c.keyID + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt, resolving the key by the
// id recorded in the prefix.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	keyID, encoded, ok := strings.Cut(ciphertext, ":")
	if !ok || keyID == "" || encoded == "" {
		return "", ErrInvalidCiphertext
	}
	if _, known := c.keys[keyID]; !known {
		return "", ErrUnknownKeyID
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	aesGCM, err := c.gcm(keyID)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.Join(ErrDecryptFailed, ErrCiphertextTooShort)
	}
	nonce, data := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, data, nil)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}
	return string(plaintext), nil
}

func (c *Cipher) gcm(keyID string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.keys[keyID])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKey creates a new random 32-byte key suitable for AES-256.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Join(ErrKeyGeneration, err)
	}
	return key, nil
}

// GenerateEncodedKey creates a new key and returns it base64-encoded,
// ready to paste into an environment file.
func GenerateEncodedKey() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// ParseKey decodes a base64-encoded 32-byte key.
func ParseKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, ErrKeyNotSet
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}
