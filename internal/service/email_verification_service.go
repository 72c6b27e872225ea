package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/authd-api/internal/models"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

type emailVerificationUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SetEmailVerified(ctx context.Context, id int64, verifiedAt time.Time) error
}

// EmailVerificationService drives the verify-email flow on the single-use
// token pattern. Like the password reset flow, requests for unknown accounts
// succeed outwardly.
type EmailVerificationService struct {
	users     emailVerificationUserStore
	tokens    *SecureTokenService
	notifier  Notifier
	audit     auditLogStore
	validator *validator.Validate
	logger    *zap.Logger
	window    time.Duration
}

// NewEmailVerificationService constructs an EmailVerificationService instance.
func NewEmailVerificationService(users emailVerificationUserStore, tokens *SecureTokenService, notifier Notifier, audit auditLogStore, validate *validator.Validate, logger *zap.Logger, window time.Duration) *EmailVerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EmailVerificationService{
		users:     users,
		tokens:    tokens,
		notifier:  notifier,
		audit:     audit,
		validator: validate,
		logger:    logger,
		window:    window,
	}
}

// Request issues a verification token and hands it to the notifier. Already
// verified subjects and unknown addresses both get a silent success.
func (s *EmailVerificationService) Request(ctx context.Context, req models.VerifyEmailRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.EmailVerified {
		return nil
	}

	token, err := s.tokens.Issue(ctx, models.PurposeEmailVerification, user.Email)
	if err != nil {
		return err
	}

	if err := s.notifier.SendEmailVerification(ctx, user.Email, token); err != nil {
		s.logger.Warn("failed to deliver verification token", zap.Error(err))
	}
	return nil
}

// Verify consumes the token and marks the subject verified. Verifying an
// already-verified subject is not an error; the call short-circuits with
// success and any leftover token is cleared.
func (s *EmailVerificationService) Verify(ctx context.Context, req models.ConfirmEmailRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "token is invalid or expired")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if user.EmailVerified {
		if err := s.tokens.store.Delete(ctx, models.PurposeEmailVerification, user.Email); err != nil {
			s.logger.Warn("failed to clear stale verification token", zap.Error(err))
		}
		return nil
	}

	if err := s.tokens.Consume(ctx, models.PurposeEmailVerification, user.Email, req.Token, s.window); err != nil {
		return err
	}

	if err := s.users.SetEmailVerified(ctx, user.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark email verified")
	}

	if s.audit != nil {
		if err := s.audit.Create(ctx, &models.AuditLog{
			UserID: &user.ID,
			Action: models.AuditActionEmailVerified,
			Detail: []byte(`{"status":"verified"}`),
		}); err != nil {
			s.logger.Warn("failed to record verification audit log", zap.Error(err))
		}
	}

	return nil
}

// CleanupExpired purges stale verification tokens and reports how many were
// removed.
func (s *EmailVerificationService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.tokens.CleanupExpired(ctx, models.PurposeEmailVerification, s.window)
}
