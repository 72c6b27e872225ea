package models

import "time"

// AuditAction enumerates recorded auth events.
type AuditAction string

const (
	AuditActionLogin          AuditAction = "auth.login"
	AuditActionLogout         AuditAction = "auth.logout"
	AuditActionRefresh        AuditAction = "auth.refresh"
	AuditActionPasswordReset  AuditAction = "auth.password_reset"
	AuditActionEmailVerified  AuditAction = "auth.email_verified"
	AuditActionSessionsRevoke AuditAction = "auth.sessions_revoked"
)

// AuditLog stores a best-effort trail of authentication events.
type AuditLog struct {
	ID        string      `db:"id" json:"id"`
	UserID    *int64      `db:"user_id" json:"user_id,omitempty"`
	Action    AuditAction `db:"action" json:"action"`
	Detail    []byte      `db:"detail" json:"detail,omitempty"`
	IPAddress string      `db:"ip_address" json:"ip_address"`
	UserAgent string      `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
