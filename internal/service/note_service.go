package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"notehub/internal/ids"
	"notehub/internal/models"
	"notehub/internal/pagination"
	"notehub/internal/repository"
)

const minTitleLength = 3

type NoteService struct {
	notes repository.NoteStore
	log   zerolog.Logger
}

func NewNoteService(notes repository.NoteStore, log zerolog.Logger) *NoteService {
	return &NoteService{notes: notes, log: log}
}

type CreateNoteInput struct {
	Title   string
	Content string
	IsDone  bool
	Tag     models.NoteTag
}

type ListNotesQuery struct {
	pagination.Query
	Search    string
	Tag       *models.NoteTag
	IsDone    *bool
	SortBy    models.NoteSortField
	SortOrder models.SortOrder
}

func (s *NoteService) Tags() []models.NoteTag {
	return models.NoteTags()
}

func (s *NoteService) Create(ctx context.Context, userID string, input CreateNoteInput) (models.Note, error) {
	input.Title = strings.TrimSpace(input.Title)
	if len([]rune(input.Title)) < minTitleLength {
		return models.Note{}, fmt.Errorf("%w: title must be at least %d characters", ErrInvalidInput, minTitleLength)
	}
	if input.Tag == "" {
		input.Tag = models.NoteTagTodo
	}
	if !input.Tag.Valid() {
		return models.Note{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidInput, input.Tag)
	}

	note, err := s.notes.Create(ctx, models.Note{
		ID:      ids.New(),
		UserID:  userID,
		Title:   input.Title,
		Content: input.Content,
		IsDone:  input.IsDone,
		Tag:     input.Tag,
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("create note: %w", err)
	}
	return note, nil
}

func (s *NoteService) List(ctx context.Context, userID string, query ListNotesQuery) (pagination.Result[models.Note], error) {
	page := query.Query.Normalize()

	sortBy := query.SortBy
	if sortBy == "" {
		sortBy = models.NoteSortID
	}
	if !sortBy.Valid() {
		return pagination.Result[models.Note]{}, fmt.Errorf("%w: unknown sort field %q", ErrInvalidInput, query.SortBy)
	}
	order := models.SortOrder(strings.ToUpper(string(query.SortOrder)))
	if order == "" {
		order = models.SortDesc
	}
	if order != models.SortAsc && order != models.SortDesc {
		return pagination.Result[models.Note]{}, fmt.Errorf("%w: unknown sort order %q", ErrInvalidInput, query.SortOrder)
	}
	if query.Tag != nil && !query.Tag.Valid() {
		return pagination.Result[models.Note]{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidInput, *query.Tag)
	}

	notes, total, err := s.notes.List(ctx, userID, models.NoteFilter{
		Search:    query.Search,
		Tag:       query.Tag,
		IsDone:    query.IsDone,
		SortBy:    sortBy,
		SortOrder: order,
		Limit:     page.PerPage,
		Offset:    page.Offset(),
	})
	if err != nil {
		return pagination.Result[models.Note]{}, err
	}
	return pagination.New(notes, total, page), nil
}

func (s *NoteService) Get(ctx context.Context, userID string, id string) (models.Note, error) {
	note, err := s.notes.GetByID(ctx, userID, id)
	return note, mapNoteErr(err)
}

func (s *NoteService) Update(ctx context.Context, userID string, id string, patch models.NotePatch) (models.Note, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if len([]rune(title)) < minTitleLength {
			return models.Note{}, fmt.Errorf("%w: title must be at least %d characters", ErrInvalidInput, minTitleLength)
		}
		patch.Title = &title
	}
	if patch.Tag != nil && !patch.Tag.Valid() {
		return models.Note{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidInput, *patch.Tag)
	}

	note, err := s.notes.Update(ctx, userID, id, patch)
	return note, mapNoteErr(err)
}

func (s *NoteService) Delete(ctx context.Context, userID string, id string) error {
	return mapNoteErr(s.notes.Delete(ctx, userID, id))
}

func mapNoteErr(err error) error {
	if errors.Is(err, repository.ErrNoteNotFound) {
		return ErrNoteNotFound
	}
	return err
}
