package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	digitsOnly = regexp.MustCompile(`^[0-9]+$`)
)

// Required fails on empty or whitespace-only values.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}

// MinLen fails when value is shorter than min bytes.
func MinLen(field, value string, min int) Rule {
	return Rule{
		Check: func() bool { return len(value) >= min },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)},
	}
}

// MaxLen fails when value is longer than max bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)},
	}
}

// ValidEmail checks the value against a pragmatic email shape. Deliverability
// is confirmed by the verification mail, not by the regex.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool { return emailRegex.MatchString(value) },
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// ValidPhone accepts E.164-shaped numbers with an optional leading plus.
func ValidPhone(field, value string) Rule {
	return Rule{
		Check: func() bool { return phoneRegex.MatchString(value) },
		Error: ValidationError{Field: field, Message: "must be a valid phone number"},
	}
}

// OneOf fails when value is not among the allowed choices.
func OneOf(field, value string, allowed ...string) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
		},
	}
}

// NumericCode fails unless value is exactly length decimal digits. Used for
// TOTP, email OTP, and backup code inputs.
func NumericCode(field, value string, length int) Rule {
	return Rule{
		Check: func() bool { return len(value) == length && digitsOnly.MatchString(value) },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be %d digits", length)},
	}
}
