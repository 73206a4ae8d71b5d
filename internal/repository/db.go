package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"notehub/internal/models"
)

const uniqueViolation = "23505"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoteNotFound    = errors.New("note not found")
)

// DB is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByHash(ctx context.Context, hash string) (models.Session, error)
	DeleteByHash(ctx context.Context, hash string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type NoteStore interface {
	Create(ctx context.Context, note models.Note) (models.Note, error)
	List(ctx context.Context, userID string, filter models.NoteFilter) ([]models.Note, int64, error)
	GetByID(ctx context.Context, userID string, id string) (models.Note, error)
	Update(ctx context.Context, userID string, id string, patch models.NotePatch) (models.Note, error)
	Delete(ctx context.Context, userID string, id string) error
}

// Store groups the repositories so a unit of work can run them against one
// transaction.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	Notes() NoteStore
	WithTx(ctx context.Context, fn func(Store) error) error
}

type PostgresStore struct {
	db       DB
	users    *UserRepository
	sessions *SessionRepository
	notes    *NoteRepository
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{
		db:       db,
		users:    NewUserRepository(db),
		sessions: NewSessionRepository(db),
		notes:    NewNoteRepository(db),
	}
}

func (s *PostgresStore) Users() UserStore       { return s.users }
func (s *PostgresStore) Sessions() SessionStore { return s.sessions }
func (s *PostgresStore) Notes() NoteStore       { return s.notes }

// WithTx runs fn inside a transaction and commits when fn returns nil.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(NewPostgresStore(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
