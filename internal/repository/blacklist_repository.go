package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/authd-api/internal/models"
)

// ErrDuplicateJTI signals an attempt to blacklist an already-revoked jti.
var ErrDuplicateJTI = errors.New("jti already blacklisted")

const pqUniqueViolation = "23505"

// BlacklistRepository persists revoked access token identifiers.
type BlacklistRepository struct {
	db *sqlx.DB
}

// NewBlacklistRepository creates a new instance of BlacklistRepository.
func NewBlacklistRepository(db *sqlx.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Insert records a revoked jti together with the original token expiry. A
// duplicate jti surfaces as ErrDuplicateJTI via the unique constraint.
func (r *BlacklistRepository) Insert(ctx context.Context, entry *models.BlacklistEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO token_blacklist (jti, expires_at, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, entry.JTI, entry.ExpiresAt, entry.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateJTI
		}
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

// Exists reports whether the jti has been blacklisted.
func (r *BlacklistRepository) Exists(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE jti = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, jti); err != nil {
		return false, fmt.Errorf("check blacklist entry: %w", err)
	}
	return exists, nil
}

// DeleteExpired purges entries whose access token has expired on its own and
// reports how many were removed.
func (r *BlacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM token_blacklist WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries rows affected: %w", err)
	}
	return affected, nil
}
