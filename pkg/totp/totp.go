package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// Digits is the length of generated codes (RFC 6238 default).
	Digits = 6
	// Period is the validity window of a single code in seconds.
	Period = 30
	// Skew is the number of periods accepted on either side of the
	// current one, absorbing clock drift between server and device.
	Skew = 1
)

var (
	secretPattern = regexp.MustCompile("^[A-Z2-7]+=*$")
	codePattern   = regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, Digits))
)

// Params describes a key for provisioning-URI generation.
type Params struct {
	Secret      string // Base32-encoded secret (required)
	AccountName string // user identifier shown in the authenticator app, usually an email (required)
	Issuer      string // service name shown in the authenticator app (required)
}

// Validate reports whether the params are sufficient to build a URI.
func (p Params) Validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if !secretPattern.MatchString(p.Secret) {
		return ErrInvalidSecret
	}
	if p.AccountName == "" {
		return ErrMissingAccountName
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

// GenerateSecret returns a new 160-bit Base32-encoded secret without padding.
func GenerateSecret() (string, error) {
	secret := make([]byte, 20) // 160 bits per RFC 4226 recommendation
	if _, err := rand.Read(secret); err != nil {
		return "", errors.Join(ErrSecretGeneration, err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret), nil
}

// ProvisioningURI builds an otpauth:// URI understood by authenticator apps.
// Format: https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func ProvisioningURI(params Params) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(params.Issuer),
		url.PathEscape(params.AccountName),
	)

	query := url.Values{}
	query.Set("secret", params.Secret)
	query.Set("issuer", params.Issuer)

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}

// GenerateCode returns the code for the period containing at.
func GenerateCode(secret string, at time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	counter := at.Unix() / int64(Period)
	return fmt.Sprintf("%0*d", Digits, HOTP(key, counter, Digits)), nil
}

// ValidateCode checks a user-supplied code against the periods within
// Skew steps of the one containing at.
func ValidateCode(secret, code string, at time.Time) (bool, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return false, err
	}

	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return false, ErrInvalidCode
	}

	counter := at.Unix() / int64(Period)
	for i := -Skew; i <= Skew; i++ {
		want := fmt.Sprintf("%0*d", Digits, HOTP(key, counter+int64(i), Digits))
		if want == code {
			return true, nil
		}
	}
	return false, nil
}

// HOTP implements the RFC 4226 HMAC-based one-time password algorithm,
// mapping a counter value to a numeric code via HMAC-SHA1 and dynamic
// truncation.
func HOTP(key []byte, counter int64, digits int) int {
	// RFC 4226 wants the counter as a big-endian 8-byte value.
	counterBytes := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		counterBytes[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes)
	sum := mac.Sum(nil)

	// Dynamic truncation: low 4 bits of the last byte select the offset,
	// the MSB of the extracted word is cleared to keep the value positive.
	offset := sum[len(sum)-1] & 0x0f
	code := (int(sum[offset]&0x7f) << 24) |
		(int(sum[offset+1]&0xff) << 16) |
		(int(sum[offset+2]&0xff) << 8) |
		int(sum[offset+3]&0xff)

	return code % int(math.Pow10(digits))
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(strings.ToUpper(secret))
	if !secretPattern.MatchString(secret) {
		return nil, ErrInvalidSecret
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	return key, nil
}
