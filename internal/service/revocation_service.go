package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/authd-api/internal/models"
	"github.com/noah-isme/authd-api/internal/repository"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

type blacklistStore interface {
	Insert(ctx context.Context, entry *models.BlacklistEntry) error
	Exists(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type revocationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

const revocationKeyPrefix = "revoked:"

// RevocationService maintains the access token blacklist. Lookups go through
// a short-TTL cache; both positive and negative results are cached so valid
// tokens do not hit the store on every request. A token revoked elsewhere may
// therefore still be accepted for up to the cache TTL after revocation. That
// staleness window is an accepted trade-off; deployments that cannot tolerate
// it should run with a zero TTL, which disables caching entirely.
type RevocationService struct {
	store    blacklistStore
	cache    revocationCache
	cacheTTL time.Duration
	logger   *zap.Logger
	metrics  *MetricsService
}

// NewRevocationService constructs a RevocationService instance. The metrics
// service is optional; a nil value disables instrumentation.
func NewRevocationService(store blacklistStore, cache revocationCache, cacheTTL time.Duration, logger *zap.Logger, metrics *MetricsService) *RevocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationService{store: store, cache: cache, cacheTTL: cacheTTL, logger: logger, metrics: metrics}
}

// Revoke blacklists a jti until the token's natural expiry. Revoking the
// same jti twice is a conflict.
func (s *RevocationService) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	entry := &models.BlacklistEntry{JTI: jti, ExpiresAt: expiresAt, CreatedAt: time.Now().UTC()}
	if err := s.store.Insert(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateJTI) {
			return appErrors.Clone(appErrors.ErrConflict, "token is already revoked")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to blacklist token")
	}
	if s.metrics != nil {
		s.metrics.IncRevocation()
	}
	return nil
}

// IsRevoked reports whether the jti has been blacklisted. The cache is
// consulted first; on a miss the store answers and the result is cached with
// the configured TTL. Cache failures degrade to a store lookup.
func (s *RevocationService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	key := revocationKeyPrefix + jti

	if s.cacheEnabled() {
		var revoked bool
		err := s.cache.Get(ctx, key, &revoked)
		if err == nil {
			if s.metrics != nil {
				s.metrics.IncCacheHit()
			}
			return revoked, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("revocation cache read failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.IncCacheMiss()
		}
	}

	revoked, err := s.store.Exists(ctx, jti)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query blacklist")
	}

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, key, revoked, s.cacheTTL); err != nil {
			s.logger.Warn("revocation cache write failed", zap.Error(err))
		}
	}

	return revoked, nil
}

// CleanupExpired purges blacklist entries whose tokens have expired on their
// own; the codec rejects those tokens without a registry lookup. The cache is
// untouched, stale entries simply age out.
func (s *RevocationService) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up blacklist")
	}
	return count, nil
}

func (s *RevocationService) cacheEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}
