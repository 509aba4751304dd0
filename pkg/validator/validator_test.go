package validator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/pkg/validator"
)

func TestApplyCollectsAllFailures(t *testing.T) {
	t.Parallel()

	err := validator.Apply(
		validator.Required("email", ""),
		validator.ValidEmail("email", ""),
		validator.Required("phone", "+123456789"),
	)
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.True(t, verrs.Has("email"))
	assert.False(t, verrs.Has("phone"))
	assert.Equal(t, []string{"email"}, verrs.Fields())
}

func TestApplyPasses(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(
		validator.ValidEmail("email", "a@example.com"),
		validator.ValidPhone("phone", "+12025550147"),
		validator.OneOf("kind", "individual", "individual", "business"),
		validator.NumericCode("code", "123456", 6),
	))
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email string
		valid bool
	}{
		{"a@x.test", true},
		{"first.last+tag@sub.example.com", true},
		{"", false},
		{"no-at-sign", false},
		{"@example.com", false},
		{"user@", false},
		{"user@tld", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			t.Parallel()

			err := validator.Apply(validator.ValidEmail("email", tt.email))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNumericCode(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(validator.NumericCode("code", "00123456", 8)))
	assert.Error(t, validator.Apply(validator.NumericCode("code", "1234567", 8)))
	assert.Error(t, validator.Apply(validator.NumericCode("code", "12a45678", 8)))
}

func TestStrongPassword(t *testing.T) {
	t.Parallel()

	policy := validator.DefaultPasswordPolicy()

	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"meets all requirements", "SecurePass123!", true},
		{"too short", "Aa1!xyz", false},
		{"too long", "Aa1!" + strings.Repeat("x", 130), false},
		{"missing uppercase", "securepass123!", false},
		{"missing lowercase", "SECUREPASS123!", false},
		{"missing digit", "SecurePass!", false},
		{"missing symbol", "SecurePass123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validator.Apply(validator.StrongPassword("password", tt.password, policy))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNotCommonPassword(t *testing.T) {
	t.Parallel()

	assert.Error(t, validator.Apply(validator.NotCommonPassword("password", "Password123")))
	assert.NoError(t, validator.Apply(validator.NotCommonPassword("password", "Xk9#mQz7&Lp2")))
}
