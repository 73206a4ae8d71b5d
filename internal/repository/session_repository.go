package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"notehub/internal/models"
)

type SessionRepository struct {
	db DB
}

func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO sessions (
			id, user_id, refresh_token_hash, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.RefreshTokenHash,
		session.ExpiresAt,
	)
	return err
}

// FindByHash loads the session together with its owner.
func (r *SessionRepository) FindByHash(ctx context.Context, hash string) (models.Session, error) {
	const query = `
		SELECT s.id, s.user_id, s.refresh_token_hash, s.expires_at, s.created_at,
		       u.id, u.name, u.email, u.password, u.avatar_url, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.refresh_token_hash = $1
	`

	row := r.db.QueryRow(ctx, query, hash)
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.RefreshTokenHash,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.User.ID,
		&session.User.Name,
		&session.User.Email,
		&session.User.PasswordHash,
		&session.User.AvatarURL,
		&session.User.CreatedAt,
		&session.User.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

// DeleteByHash reports whether this call removed the row. A second caller
// racing on the same hash sees false.
func (r *SessionRepository) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	const query = `DELETE FROM sessions WHERE refresh_token_hash = $1`
	cmd, err := r.db.Exec(ctx, query, hash)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
