package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const opaqueTokenBytes = 32

// generateOpaqueToken returns a fresh 256-bit secret encoded as 64 lowercase
// hex characters. Refresh tokens and single-use tokens share this format.
func generateOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// constantTimeEquals compares a stored secret against user input without
// short-circuiting on the first mismatching byte.
func constantTimeEquals(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
