package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/authd-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })
	return sqlxDB, mock
}

func TestRefreshTokenCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	token := &models.RefreshToken{
		UserID:    7,
		Token:     "aabbcc",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO refresh_tokens (user_id, token, expires_at, created_at) VALUES ($1, $2, $3, $4) RETURNING id`)).
		WithArgs(token.UserID, token.Token, token.ExpiresAt, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, repo.Create(context.Background(), token))
	assert.Equal(t, int64(42), token.ID)
	assert.False(t, token.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenConsumeActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked_at = $2 WHERE token = $1 AND revoked_at IS NULL AND expires_at > $2 RETURNING user_id`)).
		WithArgs("aabbcc", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(7)))

	userID, err := repo.ConsumeActive(context.Background(), "aabbcc", now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenConsumeActiveNoMatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked_at = $2 WHERE token = $1 AND revoked_at IS NULL AND expires_at > $2 RETURNING user_id`)).
		WithArgs("gone", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := repo.ConsumeActive(context.Background(), "gone", now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRevoke(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked_at = $2 WHERE token = $1 AND revoked_at IS NULL`)).
		WithArgs("aabbcc", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), "aabbcc", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRevokeNoMatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked_at = $2 WHERE token = $1 AND revoked_at IS NULL`)).
		WithArgs("gone", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), "gone", now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRevokeAllForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`)).
		WithArgs(int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// No active rows is still success.
	require.NoError(t, repo.RevokeAllForUser(context.Background(), 7, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenDeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_tokens WHERE expires_at < $1`)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenFind(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "revoked_at", "created_at"}).
		AddRow(int64(1), int64(7), "aabbcc", now.Add(time.Hour), nil, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, token, expires_at, revoked_at, created_at FROM refresh_tokens WHERE token = $1 LIMIT 1`)).
		WithArgs("aabbcc").
		WillReturnRows(rows)

	rt, err := repo.Find(context.Background(), "aabbcc")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rt.UserID)
	assert.Nil(t, rt.RevokedAt)
	assert.True(t, rt.Usable(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
