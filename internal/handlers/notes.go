package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"notehub/internal/models"
	"notehub/internal/pagination"
	"notehub/internal/service"
)

type noteResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsDone    bool      `json:"isDone"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toNoteResponse(n models.Note) noteResponse {
	return noteResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Content:   n.Content,
		IsDone:    n.IsDone,
		Tag:       string(n.Tag),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

type createNoteRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
	IsDone  bool   `json:"isDone"`
	Tag     string `json:"tag"`
}

type updateNoteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	IsDone  *bool   `json:"isDone"`
	Tag     *string `json:"tag"`
}

type listNotesRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PerPage   int    `form:"perPage" binding:"omitempty,min=1"`
	Search    string `form:"search"`
	Tag       string `form:"tag"`
	IsDone    string `form:"isDone"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}

func (h HandlerSet) NoteTags(c *gin.Context) {
	c.JSON(http.StatusOK, h.notes.Tags())
}

func (h HandlerSet) CreateNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	note, err := h.notes.Create(c.Request.Context(), userID, service.CreateNoteInput{
		Title:   req.Title,
		Content: req.Content,
		IsDone:  req.IsDone,
		Tag:     models.NoteTag(req.Tag),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toNoteResponse(note))
}

func (h HandlerSet) ListNotes(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req listNotesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	query := service.ListNotesQuery{
		Query:     pagination.Query{Page: req.Page, PerPage: req.PerPage},
		Search:    req.Search,
		SortBy:    models.NoteSortField(req.SortBy),
		SortOrder: models.SortOrder(req.SortOrder),
	}
	if req.Tag != "" {
		tag := models.NoteTag(req.Tag)
		query.Tag = &tag
	}
	if req.IsDone != "" {
		done, err := strconv.ParseBool(req.IsDone)
		if err != nil {
			badRequest(c, fmt.Errorf("isDone must be a boolean"))
			return
		}
		query.IsDone = &done
	}

	result, err := h.notes.List(c.Request.Context(), userID, query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(result, toNoteResponse))
}

func (h HandlerSet) GetNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	note, err := h.notes.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toNoteResponse(note))
}

func (h HandlerSet) UpdateNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	patch := models.NotePatch{
		Title:   req.Title,
		Content: req.Content,
		IsDone:  req.IsDone,
	}
	if req.Tag != nil {
		tag := models.NoteTag(*req.Tag)
		patch.Tag = &tag
	}

	note, err := h.notes.Update(c.Request.Context(), userID, c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toNoteResponse(note))
}

func (h HandlerSet) DeleteNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.notes.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
