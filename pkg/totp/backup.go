package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

const (
	// BackupCodeDigits is the length of a single backup code.
	BackupCodeDigits = 8
	// DefaultBackupCodeCount is the number of codes issued per enrollment.
	DefaultBackupCodeCount = 10
)

var backupCodeBound = big.NewInt(int64(math10(BackupCodeDigits)))

// GenerateBackupCodes creates count single-use numeric backup codes.
// Each code carries BackupCodeDigits uniformly random decimal digits.
func GenerateBackupCodes(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidBackupCodeCount
	}

	codes := make([]string, count)
	for i := range count {
		n, err := rand.Int(rand.Reader, backupCodeBound)
		if err != nil {
			return nil, errors.Join(ErrBackupCodeGeneration, err)
		}
		codes[i] = fmt.Sprintf("%0*d", BackupCodeDigits, n)
	}
	return codes, nil
}

// MatchBackupCode scans codes for candidate and returns its index.
// Every element is compared in constant time and the scan never exits
// early, so timing does not reveal the position or presence of a match.
func MatchBackupCode(codes []string, candidate string) (int, bool) {
	match := -1
	for i, code := range codes {
		if subtle.ConstantTimeCompare([]byte(code), []byte(candidate)) == 1 && match == -1 {
			match = i
		}
	}
	if match == -1 {
		return 0, false
	}
	return match, true
}

func math10(digits int) int {
	n := 1
	for range digits {
		n *= 10
	}
	return n
}
