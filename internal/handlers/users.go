package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notehub/internal/models"
	"notehub/internal/service"
)

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    u.AvatarURL,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type updateUserRequest struct {
	Name *string `json:"name" form:"name"`
}

func (h HandlerSet) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h HandlerSet) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFormBytes)

	var req updateUserRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	avatar, err := formAvatar(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	user, err := h.users.Update(c.Request.Context(), userID, service.UpdateProfileInput{
		Name:   req.Name,
		Avatar: avatar,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}
