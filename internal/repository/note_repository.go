package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"notehub/internal/models"
)

const noteColumns = `id, user_id, title, content, is_done, tag, created_at, updated_at`

var noteSortColumns = map[models.NoteSortField]string{
	models.NoteSortID:        "id",
	models.NoteSortTitle:     "title",
	models.NoteSortCreatedAt: "created_at",
	models.NoteSortUpdatedAt: "updated_at",
}

type NoteRepository struct {
	db DB
}

func NewNoteRepository(db DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Create(ctx context.Context, note models.Note) (models.Note, error) {
	const query = `
		INSERT INTO notes (
			id, user_id, title, content, is_done, tag, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
		RETURNING ` + noteColumns

	return scanNote(r.db.QueryRow(ctx, query,
		note.ID,
		note.UserID,
		note.Title,
		note.Content,
		note.IsDone,
		string(note.Tag),
	))
}

func (r *NoteRepository) GetByID(ctx context.Context, userID string, id string) (models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1 AND user_id = $2`
	return scanNote(r.db.QueryRow(ctx, query, id, userID))
}

// List returns one page of the user's notes and the total number of matches.
func (r *NoteRepository) List(ctx context.Context, userID string, filter models.NoteFilter) ([]models.Note, int64, error) {
	where, args := noteWhere(userID, filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM notes WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	column, ok := noteSortColumns[filter.SortBy]
	if !ok {
		column = "id"
	}
	order := "DESC"
	if filter.SortOrder == models.SortAsc {
		order = "ASC"
	}

	orderBy := column + " " + order
	if column != "id" {
		// id breaks ties so equal sort keys page deterministically
		orderBy += ", id " + order
	}

	query := fmt.Sprintf(`SELECT %s FROM notes WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		noteColumns, where, orderBy, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]models.Note, 0, filter.Limit)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, note)
	}
	return notes, total, rows.Err()
}

func (r *NoteRepository) Update(ctx context.Context, userID string, id string, patch models.NotePatch) (models.Note, error) {
	const query = `
		UPDATE notes
		SET title = COALESCE($3, title),
		    content = COALESCE($4, content),
		    is_done = COALESCE($5, is_done),
		    tag = COALESCE($6, tag),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + noteColumns

	var tag *string
	if patch.Tag != nil {
		value := string(*patch.Tag)
		tag = &value
	}
	return scanNote(r.db.QueryRow(ctx, query, id, userID, patch.Title, patch.Content, patch.IsDone, tag))
}

func (r *NoteRepository) Delete(ctx context.Context, userID string, id string) error {
	const query = `DELETE FROM notes WHERE id = $1 AND user_id = $2`
	cmd, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func noteWhere(userID string, filter models.NoteFilter) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{userID}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR content ILIKE $%d)", len(args), len(args)))
	}
	if filter.Tag != nil {
		args = append(args, string(*filter.Tag))
		clauses = append(clauses, fmt.Sprintf("tag = $%d", len(args)))
	}
	if filter.IsDone != nil {
		args = append(args, *filter.IsDone)
		clauses = append(clauses, fmt.Sprintf("is_done = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanNote(row pgx.Row) (models.Note, error) {
	var (
		note models.Note
		tag  string
	)
	if err := row.Scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&note.Content,
		&note.IsDone,
		&tag,
		&note.CreatedAt,
		&note.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Note{}, ErrNoteNotFound
		}
		return models.Note{}, err
	}
	note.Tag = models.NoteTag(tag)
	return note, nil
}
