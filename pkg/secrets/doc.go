// Package secrets encrypts short secret strings for persistence with
// AES-256-GCM under a process-level data-encryption key.
//
// Every ciphertext is returned as "<key-id>:<base64(nonce||sealed)>": the
// nonce is prepended so a row is self-contained, and the key id records
// which key produced it. Rotation therefore needs no format change:
// construct the Cipher with the new key and register the old one via
// WithRetiredKey, and previously written rows keep decrypting until they
// are rewritten.
//
// # Usage
//
//	key, _ := secrets.ParseKey(cfg.Key)
//	cipher, _ := secrets.New(cfg.KeyID, key)
//
//	ct, err := cipher.Encrypt("JBSWY3DPEHPK3PXP")
//	// store ct; later:
//	plain, err := cipher.Decrypt(ct)
//
// All public functions wrap package sentinels such as ErrDecryptFailed and
// ErrUnknownKeyID; match them with errors.Is.
package secrets
