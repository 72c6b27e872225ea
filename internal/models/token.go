package models

import "time"

// RefreshToken represents a persisted refresh token session. The token value
// is a 64-character lowercase hex string (32 random bytes), unique across all
// rows. A row is usable while revoked_at is NULL and expires_at is in the
// future; rotation revokes the presented row and inserts a fresh one.
type RefreshToken struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the token can still be exchanged.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// BlacklistEntry records an access token jti revoked before its natural
// expiry. Once expires_at passes the codec rejects the token on its own and
// the row becomes eligible for cleanup.
type BlacklistEntry struct {
	JTI       string    `db:"jti" json:"jti"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SecureTokenPurpose distinguishes the single-use token flows sharing one table.
type SecureTokenPurpose string

const (
	PurposePasswordReset     SecureTokenPurpose = "password_reset"
	PurposeEmailVerification SecureTokenPurpose = "email_verification"
)

// SecureToken is a single-use, time-boxed opaque secret bound to a subject
// key (the recipient email). At most one active row exists per
// (purpose, subject_key); issuing replaces any prior row.
type SecureToken struct {
	SubjectKey string             `db:"subject_key" json:"subject_key"`
	Purpose    SecureTokenPurpose `db:"purpose" json:"purpose"`
	Token      string             `db:"token" json:"-"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
}
