package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/authd-api/internal/models"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

type mockSecureTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.SecureToken
}

func newMockSecureTokenStore() *mockSecureTokenStore {
	return &mockSecureTokenStore{tokens: make(map[string]*models.SecureToken)}
}

func secureTokenKey(purpose models.SecureTokenPurpose, subjectKey string) string {
	return string(purpose) + ":" + subjectKey
}

func (m *mockSecureTokenStore) Replace(ctx context.Context, token *models.SecureToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *token
	m.tokens[secureTokenKey(token.Purpose, token.SubjectKey)] = &copied
	return nil
}

func (m *mockSecureTokenStore) Find(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey string) (*models.SecureToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[secureTokenKey(purpose, subjectKey)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *token
	return &copied, nil
}

func (m *mockSecureTokenStore) Delete(ctx context.Context, purpose models.SecureTokenPurpose, subjectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, secureTokenKey(purpose, subjectKey))
	return nil
}

func (m *mockSecureTokenStore) DeleteOlderThan(ctx context.Context, purpose models.SecureTokenPurpose, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for key, token := range m.tokens {
		if token.Purpose == purpose && token.CreatedAt.Before(cutoff) {
			delete(m.tokens, key)
			count++
		}
	}
	return count, nil
}

func (m *mockSecureTokenStore) backdate(purpose models.SecureTokenPurpose, subjectKey string, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token, ok := m.tokens[secureTokenKey(purpose, subjectKey)]; ok {
		token.CreatedAt = time.Now().UTC().Add(-age)
	}
}

func TestSecureTokenIssueAndValidate(t *testing.T) {
	store := newMockSecureTokenStore()
	svc := NewSecureTokenService(store, zap.NewNop())
	ctx := context.Background()

	token, err := svc.Issue(ctx, models.PurposePasswordReset, "alice@example.com")
	require.NoError(t, err)
	assert.Regexp(t, hexTokenPattern, token)

	valid, err := svc.IsValid(ctx, models.PurposePasswordReset, "alice@example.com", token, time.Hour)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = svc.IsValid(ctx, models.PurposePasswordReset, "alice@example.com", "wrong-token", time.Hour)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = svc.IsValid(ctx, models.PurposePasswordReset, "nobody@example.com", token, time.Hour)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestSecureTokenReissueInvalidatesPrevious(t *testing.T) {
	store := newMockSecureTokenStore()
	svc := NewSecureTokenService(store, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Issue(ctx, models.PurposePasswordReset, "alice@example.com")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, models.PurposePasswordReset, "alice@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	valid, err := svc.IsValid(ctx, models.PurposePasswordReset, "alice@example.com", first, time.Hour)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = svc.IsValid(ctx, models.PurposePasswordReset, "alice@example.com", second, time.Hour)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSecureTokenWindowBoundary(t *testing.T) {
	store := newMockSecureTokenStore()
	svc := NewSecureTokenService(store, zap.NewNop())
	ctx := context.Background()

	token, err := svc.Issue(ctx, models.PurposePasswordReset, "alice@example.com")
	require.NoError(t, err)

	store.backdate(models.PurposePasswordReset, "alice@example.com", 59*time.Minute)
	valid, err := svc.IsValid(ctx, models.PurposePasswordReset, "alice@example.com", token, time.Hour)
	require.NoError(t, err)
	assert.True(t, valid)

	store.backdate(models.PurposePasswordReset, "alice@example.com", 61*time.Minute)
	valid, err = svc.IsValid(ctx, models.PurposePasswordReset, "alice@example.com", token, time.Hour)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestSecureTokenConsumeOnce(t *testing.T) {
	store := newMockSecureTokenStore()
	svc := NewSecureTokenService(store, zap.NewNop())
	ctx := context.Background()

	token, err := svc.Issue(ctx, models.PurposeEmailVerification, "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Consume(ctx, models.PurposeEmailVerification, "alice@example.com", token, time.Hour))

	err = svc.Consume(ctx, models.PurposeEmailVerification, "alice@example.com", token, time.Hour)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSecureTokenConsumeWrongToken(t *testing.T) {
	store := newMockSecureTokenStore()
	svc := NewSecureTokenService(store, zap.NewNop())
	ctx := context.Background()

	token, err := svc.Issue(ctx, models.PurposeEmailVerification, "alice@example.com")
	require.NoError(t, err)

	err = svc.Consume(ctx, models.PurposeEmailVerification, "alice@example.com", "bogus", time.Hour)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	// The stored token survives a failed consume attempt.
	valid, err := svc.IsValid(ctx, models.PurposeEmailVerification, "alice@example.com", token, time.Hour)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSecureTokenCleanupExpired(t *testing.T) {
	store := newMockSecureTokenStore()
	svc := NewSecureTokenService(store, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Issue(ctx, models.PurposePasswordReset, "stale@example.com")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, models.PurposePasswordReset, "fresh@example.com")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, models.PurposeEmailVerification, "stale@example.com")
	require.NoError(t, err)

	store.backdate(models.PurposePasswordReset, "stale@example.com", 2*time.Hour)
	store.backdate(models.PurposeEmailVerification, "stale@example.com", 2*time.Hour)

	// Cleanup is scoped per purpose.
	count, err := svc.CleanupExpired(ctx, models.PurposePasswordReset, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	valid, err := svc.IsValid(ctx, models.PurposeEmailVerification, "stale@example.com", "anything", 3*time.Hour)
	require.NoError(t, err)
	assert.False(t, valid)
	_, err = store.Find(ctx, models.PurposeEmailVerification, "stale@example.com")
	require.NoError(t, err)
}
