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
	"github.com/noah-isme/authd-api/pkg/config"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error
}

type refreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	ConsumeActive(ctx context.Context, token string, now time.Time) (int64, error)
	Revoke(ctx context.Context, token string, revokedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID int64, revokedAt time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type jtiRevoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

type auditLogStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuthService owns login and the refresh token lifecycle: issue, rotate on
// use, revoke, revoke-all, and expiry cleanup.
type AuthService struct {
	users       authUserRepository
	tokens      refreshTokenStore
	audit       auditLogStore
	codec       *TokenCodec
	revocations jtiRevoker
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	config      config.AuthConfig
}

// NewAuthService constructs an AuthService instance. The metrics service is
// optional; a nil value disables instrumentation.
func NewAuthService(users authUserRepository, tokens refreshTokenStore, audit auditLogStore, codec *TokenCodec, revocations jtiRevoker, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg config.AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:       users,
		tokens:      tokens,
		audit:       audit,
		codec:       codec,
		revocations: revocations,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		config:      cfg,
	}
}

// Login authenticates a user and returns an access/refresh token pair.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	if s.config.SingleSession {
		if err := s.tokens.RevokeAllForUser(ctx, user.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to revoke previous refresh tokens", zap.Error(err))
		}
	}

	accessToken, _, err := s.codec.Encode(user.ID, user.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	if s.metrics != nil {
		s.metrics.IncTokenIssued("access")
	}

	refreshToken, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.writeAudit(ctx, &user.ID, models.AuditActionLogin, []byte(`{"status":"success"}`), req.IP, req.UserAgent)

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
		User:         user.Info(),
	}, nil
}

// Issue creates a fresh opaque refresh token for the subject and persists it.
// Only the token value leaves the service; the record stays internal.
func (s *AuthService) Issue(ctx context.Context, userID int64) (string, error) {
	value, err := generateOpaqueToken()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	record := &models.RefreshToken{
		UserID:    userID,
		Token:     value,
		ExpiresAt: time.Now().UTC().Add(s.config.RefreshTokenExpiry),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}
	if s.metrics != nil {
		s.metrics.IncTokenIssued("refresh")
	}
	return value, nil
}

// Refresh rotates the presented refresh token and mints a new access token.
// The store-level conditional update is the only usability check: zero rows
// means the token is unknown, expired, or already consumed by a racing
// caller, and the exchange fails. There is no read-then-act window.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	now := time.Now().UTC()
	userID, err := s.tokens.ConsumeActive(ctx, req.RefreshToken, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if s.metrics != nil {
				s.metrics.IncReplayRejected()
			}
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is invalid, expired, or already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume refresh token")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	newRefresh, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	accessToken, _, err := s.codec.Encode(user.ID, user.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}
	if s.metrics != nil {
		s.metrics.IncTokenIssued("access")
		s.metrics.IncRefreshRotated()
	}

	s.writeAudit(ctx, &user.ID, models.AuditActionRefresh, []byte(`{"refresh":"rotated"}`), req.IP, req.UserAgent)

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Revoke marks a specific refresh token revoked.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, token, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	return nil
}

// RevokeAll revokes every active refresh token of the subject. A subject
// with no active tokens still gets a success; the operation is idempotent.
func (s *AuthService) RevokeAll(ctx context.Context, userID int64) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh tokens")
	}
	return nil
}

// Logout revokes the presented refresh token and blacklists the access
// token's jti until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, claims *models.AccessTokenClaims, ip, userAgent string) error {
	if err := s.Revoke(ctx, refreshToken); err != nil {
		return err
	}

	if claims != nil && claims.ID != "" && claims.ExpiresAt != nil {
		if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			// A conflicting entry means the jti is already dead, which is
			// exactly what logout wants.
			if appErrors.FromError(err).Code != appErrors.ErrConflict.Code {
				s.logger.Warn("failed to blacklist access token", zap.Error(err))
			}
		}
		s.writeAudit(ctx, &claims.UserID, models.AuditActionLogout, []byte(`{"status":"logout"}`), ip, userAgent)
	}

	return nil
}

// CleanupExpired deletes refresh tokens past their expiry, regardless of
// revocation state, and returns the number removed.
func (s *AuthService) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.tokens.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up refresh tokens")
	}
	return count, nil
}

func (s *AuthService) writeAudit(ctx context.Context, userID *int64, action models.AuditAction, detail []byte, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		IPAddress: ip,
		UserAgent: userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", string(action)), zap.Error(err))
	}
}
