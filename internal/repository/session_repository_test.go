package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notehub/internal/models"
)

func TestSessionRepositoryCreate(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionRepository(mock)
	expires := time.Now().Add(7 * 24 * time.Hour)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("s1", "u1", "abc", expires).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), models.Session{ID: "s1", UserID: "u1", RefreshTokenHash: "abc", ExpiresAt: expires})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByHash(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "refresh_token_hash", "expires_at", "created_at",
		"id", "name", "email", "password", "avatar_url", "created_at", "updated_at",
	}).AddRow("s1", "u1", "abc", now.Add(time.Hour), now,
		"u1", "Alice", "a@example.com", "hash", (*string)(nil), now, now)

	mock.ExpectQuery(`FROM sessions s\s+JOIN users u ON u.id = s.user_id\s+WHERE s.refresh_token_hash = \$1`).
		WithArgs("abc").
		WillReturnRows(rows)

	session, err := repo.FindByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, "a@example.com", session.User.Email)
	assert.False(t, session.Expired(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByHashNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionRepository(mock)

	mock.ExpectQuery("FROM sessions").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByHash(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteByHash(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionRepository(mock)

	mock.ExpectExec(`DELETE FROM sessions WHERE refresh_token_hash = \$1`).
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM sessions WHERE refresh_token_hash = \$1`).
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := repo.DeleteByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryBulkDeletes(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionRepository(mock)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	n, err := repo.DeleteAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
