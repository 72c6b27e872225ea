package service

import (
	"context"

	"go.uber.org/zap"
)

type expiryCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// MaintenanceService runs the periodic expiry sweeps over refresh tokens,
// the revocation blacklist, and single-use tokens. Every sweep is a pure
// timestamp-guarded deletion, idempotent and safe to run concurrently with
// request traffic.
type MaintenanceService struct {
	sweeps map[string]expiryCleaner
	logger *zap.Logger
}

// NewMaintenanceService constructs a MaintenanceService over the given sweeps.
func NewMaintenanceService(refresh, blacklist, passwordReset, emailVerification expiryCleaner, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{
		sweeps: map[string]expiryCleaner{
			"refresh_tokens":            refresh,
			"token_blacklist":           blacklist,
			"password_reset_tokens":     passwordReset,
			"email_verification_tokens": emailVerification,
		},
		logger: logger,
	}
}

// RunSweep executes every cleanup once, logging per-target counts. The first
// storage error aborts the sweep; the next tick retries from scratch.
func (s *MaintenanceService) RunSweep(ctx context.Context) error {
	for name, cleaner := range s.sweeps {
		if cleaner == nil {
			continue
		}
		count, err := cleaner.CleanupExpired(ctx)
		if err != nil {
			s.logger.Error("cleanup sweep failed", zap.String("target", name), zap.Error(err))
			return err
		}
		if count > 0 {
			s.logger.Info("cleanup sweep completed", zap.String("target", name), zap.Int64("removed", count))
		}
	}
	return nil
}
