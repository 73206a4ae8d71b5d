package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notehub/internal/config"
	"notehub/internal/media/sniffer"
	"notehub/internal/middleware"
	"notehub/internal/queue"
	"notehub/internal/service"
	"notehub/internal/tasks"
)

// multipart bodies carry at most one avatar plus a few text fields
const maxFormBytes = sniffer.MaxAvatarBytes + 1<<20

type registerRequest struct {
	Name     string `json:"name" form:"name" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Message          string `json:"message"`
	ExpiresIn        int    `json:"expiresIn"`
	RefreshExpiresIn int    `json:"refreshExpiresIn"`
	AccessToken      string `json:"accessToken,omitempty"`
	RefreshToken     string `json:"refreshToken,omitempty"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFormBytes)

	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}

	avatar, err := formAvatar(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	pair, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   avatar,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.sendTokens(c, http.StatusCreated, "Registration successful", pair)
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.sendTokens(c, http.StatusOK, "Login successful", pair)
}

func (h HandlerSet) Refresh(c *gin.Context) {
	pair, err := h.auth.Refresh(c.Request.Context(), middleware.RefreshToken(c))
	if err != nil {
		if errors.Is(err, service.ErrAccessDenied) {
			h.clearTokens(c)
		}
		h.writeError(c, err)
		return
	}

	h.sendTokens(c, http.StatusOK, "Tokens refreshed", pair)
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.RefreshToken(c)); err != nil {
		h.writeError(c, err)
		return
	}

	h.clearTokens(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

// LogoutAll revokes every session of the caller. With a worker attached the
// revocation is queued and the response is 202.
func (h HandlerSet) LogoutAll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if h.jobs != nil {
		id, err := h.jobs.Enqueue(c.Request.Context(), tasks.TypeRevokeUser, map[string]any{queue.FieldUserID: userID})
		if err == nil {
			h.clearTokens(c)
			c.JSON(http.StatusAccepted, gin.H{"message": "Logout scheduled", "jobId": id})
			return
		}
		h.log.Warn().Err(err).Str("user_id", userID).Msg("enqueue revoke failed, revoking inline")
	}

	revoked, err := h.auth.RevokeAllSessions(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.clearTokens(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful", "revoked": revoked})
}

// sendTokens writes the pair the way the configured transport expects:
// httpOnly cookies, or the body for bearer clients.
func (h HandlerSet) sendTokens(c *gin.Context, status int, message string, pair service.TokenPair) {
	resp := authResponse{
		Message:          message,
		ExpiresIn:        seconds(h.cfg.Cookies.AccessMaxAge),
		RefreshExpiresIn: seconds(h.cfg.Cookies.RefreshMaxAge),
	}

	if h.cfg.Security.TokenTransport == config.TransportBearer {
		resp.AccessToken = pair.AccessToken
		resp.RefreshToken = pair.RefreshToken
	} else {
		h.setCookie(c, middleware.AccessCookie, pair.AccessToken, resp.ExpiresIn)
		h.setCookie(c, middleware.RefreshCookie, pair.RefreshToken, resp.RefreshExpiresIn)
	}

	c.JSON(status, resp)
}

func (h HandlerSet) clearTokens(c *gin.Context) {
	if h.cfg.Security.TokenTransport == config.TransportBearer {
		return
	}
	h.setCookie(c, middleware.AccessCookie, "", -1)
	h.setCookie(c, middleware.RefreshCookie, "", -1)
}

func (h HandlerSet) setCookie(c *gin.Context, name string, value string, maxAge int) {
	path := h.cfg.Cookies.Path
	if path == "" {
		path = "/"
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, maxAge, path, h.cfg.Cookies.Domain, h.cfg.IsProduction(), true)
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

// formAvatar returns the optional "avatar" part of a multipart request.
func formAvatar(c *gin.Context) (*sniffer.Image, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, nil
	}

	file, header, err := c.Request.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := sniffer.ReadAvatar(file, sniffer.MimeTypeFromHTTP(http.Header(header.Header)))
	if err != nil {
		return nil, err
	}
	return &img, nil
}
