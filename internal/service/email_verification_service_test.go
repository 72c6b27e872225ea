package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/authd-api/internal/models"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

func newTestEmailVerificationService(t *testing.T, users *mockAccountUserStore) (*EmailVerificationService, *captureNotifier) {
	t.Helper()
	tokens := NewSecureTokenService(newMockSecureTokenStore(), zap.NewNop())
	notifier := newCaptureNotifier()
	svc := NewEmailVerificationService(users, tokens, notifier, &mockAuditStore{}, nil, zap.NewNop(), 24*time.Hour)
	return svc, notifier
}

func TestEmailVerificationFullFlow(t *testing.T) {
	user := activeUser(t, 1, "alice@example.com", "Sup3r$ecret")
	users := newMockAccountUserStore(user)
	svc, notifier := newTestEmailVerificationService(t, users)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, models.VerifyEmailRequest{Email: user.Email}))
	token := notifier.verifyTokens[user.Email]
	require.Regexp(t, hexTokenPattern, token)

	require.NoError(t, svc.Verify(ctx, models.ConfirmEmailRequest{Email: user.Email, Token: token}))
	assert.True(t, user.EmailVerified)
}

func TestEmailVerificationRequestUnknownEmailSilent(t *testing.T) {
	svc, notifier := newTestEmailVerificationService(t, newMockAccountUserStore())

	err := svc.Request(context.Background(), models.VerifyEmailRequest{Email: "nobody@example.com"})
	require.NoError(t, err)
	assert.Zero(t, notifier.verifyCalls)
}

func TestEmailVerificationRequestAlreadyVerifiedSilent(t *testing.T) {
	user := activeUser(t, 1, "alice@example.com", "Sup3r$ecret")
	user.EmailVerified = true
	svc, notifier := newTestEmailVerificationService(t, newMockAccountUserStore(user))

	err := svc.Request(context.Background(), models.VerifyEmailRequest{Email: user.Email})
	require.NoError(t, err)
	assert.Zero(t, notifier.verifyCalls)
}

func TestEmailVerificationIdempotent(t *testing.T) {
	user := activeUser(t, 1, "alice@example.com", "Sup3r$ecret")
	users := newMockAccountUserStore(user)
	svc, notifier := newTestEmailVerificationService(t, users)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, models.VerifyEmailRequest{Email: user.Email}))
	token := notifier.verifyTokens[user.Email]

	require.NoError(t, svc.Verify(ctx, models.ConfirmEmailRequest{Email: user.Email, Token: token}))

	// Confirming again succeeds regardless of what token is presented.
	require.NoError(t, svc.Verify(ctx, models.ConfirmEmailRequest{Email: user.Email, Token: token}))
	require.NoError(t, svc.Verify(ctx, models.ConfirmEmailRequest{Email: user.Email, Token: "whatever"}))
}

func TestEmailVerificationBadToken(t *testing.T) {
	user := activeUser(t, 1, "alice@example.com", "Sup3r$ecret")
	svc, _ := newTestEmailVerificationService(t, newMockAccountUserStore(user))

	err := svc.Verify(context.Background(), models.ConfirmEmailRequest{Email: user.Email, Token: "bogus"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.False(t, user.EmailVerified)
}

func TestEmailVerificationUnknownEmail(t *testing.T) {
	svc, _ := newTestEmailVerificationService(t, newMockAccountUserStore())

	err := svc.Verify(context.Background(), models.ConfirmEmailRequest{Email: "nobody@example.com", Token: "bogus"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
