package service

import (
	"fmt"
	"unicode"

	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

const (
	passwordMinLength = 8
	// bcrypt truncates input beyond 72 bytes, so longer passwords would
	// silently lose entropy.
	passwordMaxLength = 72
)

// ValidatePasswordStrength enforces the complexity policy for new passwords:
// length bounds plus at least one upper, lower, digit, and special character.
func ValidatePasswordStrength(password string) error {
	if len(password) < passwordMinLength {
		return appErrors.Clone(appErrors.ErrWeakPassword, fmt.Sprintf("password must be at least %d characters", passwordMinLength))
	}
	if len(password) > passwordMaxLength {
		return appErrors.Clone(appErrors.ErrWeakPassword, fmt.Sprintf("password must be at most %d characters", passwordMaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return appErrors.Clone(appErrors.ErrWeakPassword, "password must contain upper and lower case letters, a digit, and a special character")
	}
	return nil
}
