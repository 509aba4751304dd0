package secrets

import "errors"

var (
	ErrInvalidKeyID       = errors.New("invalid key id: must be non-empty and contain no separators")
	ErrInvalidKeyLength   = errors.New("invalid key: must be 32 bytes")
	ErrInvalidKey         = errors.New("invalid key encoding")
	ErrKeyNotSet          = errors.New("encryption key not set")
	ErrKeyGeneration      = errors.New("failed to generate encryption key")
	ErrUnknownKeyID       = errors.New("ciphertext references an unknown key id")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext format")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrEncryptFailed      = errors.New("encryption failed")
	ErrDecryptFailed      = errors.New("decryption failed")
)
