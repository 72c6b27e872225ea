package service

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers single-use tokens to subjects out-of-band. Concrete
// transports (SMTP, SES, ...) live outside this module.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendEmailVerification(ctx context.Context, email, token string) error
}

// LogNotifier is a development stand-in that writes deliveries to the log
// instead of sending mail. Token values are never logged.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.logger.Info("password reset link requested", zap.String("email", email))
	return nil
}

func (n *LogNotifier) SendEmailVerification(ctx context.Context, email, token string) error {
	n.logger.Info("email verification link requested", zap.String("email", email))
	return nil
}
