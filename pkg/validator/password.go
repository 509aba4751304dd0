package validator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	uppercaseRegex   = regexp.MustCompile(`[A-Z]`)
	lowercaseRegex   = regexp.MustCompile(`[a-z]`)
	digitRegex       = regexp.MustCompile(`[0-9]`)
	specialCharRegex = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?~` + "`" + `]`)

	// Frequently compromised passwords that pass the structural checks.
	commonPasswords = map[string]bool{
		"password":    true,
		"password1":   true,
		"password123": true,
		"password12":  true,
		"password!":   true,
		"passw0rd":    true,
		"p@ssword1":   true,
		"p@ssw0rd":    true,
		"qwerty123":   true,
		"1q2w3e4r":    true,
		"1qaz2wsx":    true,
		"zaq12wsx":    true,
		"abcd1234":    true,
		"admin123":    true,
		"letmein1":    true,
		"welcome1":    true,
		"iloveyou1":   true,
		"trustno1":    true,
		"sunshine1":   true,
		"princess1":   true,
	}
)

// PasswordPolicy describes the structural requirements applied to new
// passwords at registration, change, and reset.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy requires 8-128 characters with at least one
// uppercase letter, one lowercase letter, one digit, and one symbol.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		MaxLength:        128,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
	}
}

// StrongPassword checks value against the given policy.
func StrongPassword(field, value string, policy PasswordPolicy) Rule {
	return Rule{
		Check: func() bool {
			if len(value) < policy.MinLength || len(value) > policy.MaxLength {
				return false
			}
			if policy.RequireUppercase && !uppercaseRegex.MatchString(value) {
				return false
			}
			if policy.RequireLowercase && !lowercaseRegex.MatchString(value) {
				return false
			}
			if policy.RequireDigit && !digitRegex.MatchString(value) {
				return false
			}
			if policy.RequireSpecial && !specialCharRegex.MatchString(value) {
				return false
			}
			return true
		},
		Error: ValidationError{
			Field: field,
			Message: fmt.Sprintf(
				"must be %d-%d characters with upper and lower case letters, a digit, and a symbol",
				policy.MinLength, policy.MaxLength,
			),
		},
	}
}

// NotCommonPassword rejects passwords from the compromised-password list.
func NotCommonPassword(field, value string) Rule {
	return Rule{
		Check: func() bool { return !commonPasswords[strings.ToLower(value)] },
		Error: ValidationError{Field: field, Message: "is too common, choose a different password"},
	}
}
