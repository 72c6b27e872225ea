package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/authd-api/internal/models"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

type secureTokenStore interface {
	Replace(ctx context.Context, token *models.SecureToken) error
	Find(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey string) (*models.SecureToken, error)
	Delete(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey string) error
	DeleteOlderThan(ctx context.Context, purpose models.SecureTokenPurpose, cutoff time.Time) (int64, error)
}

// SecureTokenService implements the single-use secure token pattern shared by
// the password reset and email verification flows: a high-entropy opaque
// token bound to a subject key, valid inside a time window, compared in
// constant time, and consumed on success.
type SecureTokenService struct {
	store  secureTokenStore
	logger *zap.Logger
}

// NewSecureTokenService constructs a SecureTokenService instance.
func NewSecureTokenService(store secureTokenStore, logger *zap.Logger) *SecureTokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecureTokenService{store: store, logger: logger}
}

// Issue replaces any outstanding token for the subject with a fresh one and
// returns it for out-of-band delivery.
func (s *SecureTokenService) Issue(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey string) (string, error) {
	value, err := generateOpaqueToken()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
	}

	record := &models.SecureToken{
		SubjectKey: subjectKey,
		Purpose:    purpose,
		Token:      value,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Replace(ctx, record); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist token")
	}
	return value, nil
}

// IsValid reports whether the presented token matches the stored one for the
// subject and is still inside the validity window. The comparison does not
// short-circuit on the first mismatching byte.
func (s *SecureTokenService) IsValid(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey, presented string, window time.Duration) (bool, error) {
	record, err := s.store.Find(ctx, purpose, subjectKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token")
	}

	if time.Now().UTC().Sub(record.CreatedAt) > window {
		return false, nil
	}
	return constantTimeEquals(record.Token, presented), nil
}

// Consume validates and then deletes the token so it cannot be used again.
// Invalid and expired tokens are indistinguishable to the caller.
func (s *SecureTokenService) Consume(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey, presented string, window time.Duration) error {
	valid, err := s.IsValid(ctx, purpose, subjectKey, presented, window)
	if err != nil {
		return err
	}
	if !valid {
		return appErrors.Clone(appErrors.ErrNotFound, "token is invalid or expired")
	}
	if err := s.store.Delete(ctx, purpose, subjectKey); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume token")
	}
	return nil
}

// CleanupExpired purges tokens older than the validity window, whether or
// not they were ever consumed, and reports how many were removed.
func (s *SecureTokenService) CleanupExpired(ctx context.Context, purpose models.SecureTokenPurpose, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window)
	count, err := s.store.DeleteOlderThan(ctx, purpose, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up tokens")
	}
	return count, nil
}
