package secrets

// Config carries the process data-encryption key used for secret material
// at rest (TOTP secrets, backup-code bundles).
type Config struct {
	// Key is a base64-encoded 32-byte AES-256 key. Generate one with
	// cmd/keygen or secrets.GenerateEncodedKey.
	Key string `env:"ENCRYPTION_KEY,required"`
	// KeyID tags ciphertexts produced under Key, enabling later rotation.
	KeyID string `env:"ENCRYPTION_KEY_ID" envDefault:"v1"`
}
