package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/authd-api/internal/models"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

type passwordResetUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, userID int64) error
}

// PasswordResetService drives the forgot/reset password flow on top of the
// single-use token pattern. Requests for unknown accounts succeed outwardly
// so the endpoint cannot be used to enumerate registered addresses.
type PasswordResetService struct {
	users     passwordResetUserStore
	tokens    *SecureTokenService
	sessions  sessionRevoker
	notifier  Notifier
	audit     auditLogStore
	validator *validator.Validate
	logger    *zap.Logger
	window    time.Duration
}

// NewPasswordResetService constructs a PasswordResetService instance.
func NewPasswordResetService(users passwordResetUserStore, tokens *SecureTokenService, sessions sessionRevoker, notifier Notifier, audit auditLogStore, validate *validator.Validate, logger *zap.Logger, window time.Duration) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PasswordResetService{
		users:     users,
		tokens:    tokens,
		sessions:  sessions,
		notifier:  notifier,
		audit:     audit,
		validator: validate,
		logger:    logger,
		window:    window,
	}
}

// Request issues a reset token and hands it to the notifier. The response is
// identical whether or not the account exists.
func (s *PasswordResetService) Request(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid forgot password payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	token, err := s.tokens.Issue(ctx, models.PurposePasswordReset, user.Email)
	if err != nil {
		return err
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Warn("failed to deliver password reset token", zap.Error(err))
	}
	return nil
}

// Reset consumes the token and installs the new password. The complexity
// policy is checked before the token, so a weak password fails with a
// validation error even when the token is garbage.
func (s *PasswordResetService) Reset(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset password payload")
	}

	if err := ValidatePasswordStrength(req.NewPassword); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Indistinguishable from a bad token.
			return appErrors.Clone(appErrors.ErrNotFound, "token is invalid or expired")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := s.tokens.Consume(ctx, models.PurposePasswordReset, user.Email, req.Token, s.window); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after password reset", zap.Error(err))
	}

	if s.audit != nil {
		if err := s.audit.Create(ctx, &models.AuditLog{
			UserID: &user.ID,
			Action: models.AuditActionPasswordReset,
			Detail: []byte(`{"status":"reset"}`),
		}); err != nil {
			s.logger.Warn("failed to record password reset audit log", zap.Error(err))
		}
	}

	return nil
}

// CleanupExpired purges stale reset tokens and reports how many were removed.
func (s *PasswordResetService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.tokens.CleanupExpired(ctx, models.PurposePasswordReset, s.window)
}
