package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"all four classes", "Abcdef1!", true},
		{"longer passphrase", "Corr3ct-Horse-Battery", true},
		{"too short", "Ab1!", false},
		{"too long", strings.Repeat("Aa1!", 19), false},
		{"missing uppercase", "abcdef1!", false},
		{"missing lowercase", "ABCDEF1!", false},
		{"missing digit", "Abcdefg!", false},
		{"missing special", "Abcdefg1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrWeakPassword.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestValidatePasswordStrengthBcryptBoundary(t *testing.T) {
	// 72 bytes is the longest password bcrypt hashes in full.
	exactly72 := "Aa1!" + strings.Repeat("x", 68)
	require.Len(t, exactly72, 72)
	assert.NoError(t, ValidatePasswordStrength(exactly72))

	assert.Error(t, ValidatePasswordStrength(exactly72+"x"))
}
