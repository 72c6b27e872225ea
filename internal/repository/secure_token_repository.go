package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/authd-api/internal/models"
)

// SecureTokenRepository persists single-use secure tokens. One table serves
// every purpose; rows are keyed by (purpose, subject_key).
type SecureTokenRepository struct {
	db *sqlx.DB
}

// NewSecureTokenRepository creates a new instance of SecureTokenRepository.
func NewSecureTokenRepository(db *sqlx.DB) *SecureTokenRepository {
	return &SecureTokenRepository{db: db}
}

// Replace removes any prior token for the subject and stores the fresh one,
// so at most one token per (purpose, subject_key) is ever live.
func (r *SecureTokenRepository) Replace(ctx context.Context, token *models.SecureToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const del = `DELETE FROM secure_tokens WHERE purpose = $1 AND subject_key = $2`
	if _, err := r.db.ExecContext(ctx, del, token.Purpose, token.SubjectKey); err != nil {
		return fmt.Errorf("delete prior secure tokens: %w", err)
	}
	const ins = `INSERT INTO secure_tokens (purpose, subject_key, token, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, ins, token.Purpose, token.SubjectKey, token.Token, token.CreatedAt); err != nil {
		return fmt.Errorf("insert secure token: %w", err)
	}
	return nil
}

// Find returns the stored token for a subject, if any.
func (r *SecureTokenRepository) Find(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey string) (*models.SecureToken, error) {
	const query = `SELECT purpose, subject_key, token, created_at FROM secure_tokens WHERE purpose = $1 AND subject_key = $2 LIMIT 1`
	var st models.SecureToken
	if err := r.db.GetContext(ctx, &st, query, purpose, subjectKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find secure token: %w", err)
	}
	return &st, nil
}

// Delete removes the subject's token, consuming it.
func (r *SecureTokenRepository) Delete(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey string) error {
	const query = `DELETE FROM secure_tokens WHERE purpose = $1 AND subject_key = $2`
	if _, err := r.db.ExecContext(ctx, query, purpose, subjectKey); err != nil {
		return fmt.Errorf("delete secure token: %w", err)
	}
	return nil
}

// DeleteOlderThan purges stale tokens issued before the cutoff and reports
// how many were removed.
func (r *SecureTokenRepository) DeleteOlderThan(ctx context.Context, purpose models.SecureTokenPurpose, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM secure_tokens WHERE purpose = $1 AND created_at < $2`
	res, err := r.db.ExecContext(ctx, query, purpose, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale secure tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale secure tokens rows affected: %w", err)
	}
	return affected, nil
}
