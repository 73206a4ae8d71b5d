package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"notehub/internal/config"
	"notehub/internal/metrics"
	"notehub/internal/middleware"
	"notehub/internal/oauth"
	"notehub/internal/ratelimit"
	"notehub/internal/service"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// JobQueue hands work to the background worker.
type JobQueue interface {
	Enqueue(ctx context.Context, taskType string, fields map[string]any) (string, error)
}

// Dependencies groups everything the HTTP layer needs. OAuth, States and Jobs
// may be nil when the corresponding feature is disabled.
type Dependencies struct {
	Log     zerolog.Logger
	Config  *config.AppConfig
	Auth    *service.AuthService
	Users   *service.UserService
	Notes   *service.NoteService
	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics
	OAuth   *oauth.Provider
	States  *oauth.StateStore
	Jobs    JobQueue
	Checks  map[string]HealthCheck
}

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	auth    *service.AuthService
	users   *service.UserService
	notes   *service.NoteService
	limiter ratelimit.Limiter
	metrics *metrics.Metrics
	oauth   *oauth.Provider
	states  *oauth.StateStore
	jobs    JobQueue
	checks  map[string]HealthCheck

	accessToken  middleware.TokenExtractor
	refreshToken middleware.TokenExtractor
}

func NewHandlerSet(deps Dependencies) HandlerSet {
	access, refresh := middleware.Extractors(deps.Config.Security.TokenTransport)
	return HandlerSet{
		log:          deps.Log,
		cfg:          deps.Config,
		auth:         deps.Auth,
		users:        deps.Users,
		notes:        deps.Notes,
		limiter:      deps.Limiter,
		metrics:      deps.Metrics,
		oauth:        deps.OAuth,
		states:       deps.States,
		jobs:         deps.Jobs,
		checks:       deps.Checks,
		accessToken:  access,
		refreshToken: refresh,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	sec := h.cfg.Security
	requireAccess := middleware.RequireAccess(h.accessToken, sec.JWTAccessSecret)

	auth := router.Group("/auth")
	{
		auth.POST("/register", h.RegisterUser)
		if h.limiter != nil {
			auth.POST("/login", middleware.RateLimit(h.limiter, h.log), h.Login)
		} else {
			auth.POST("/login", h.Login)
		}
		auth.POST("/refresh", middleware.RequireRefresh(h.refreshToken, sec.JWTRefreshSecret, false), h.Refresh)
		auth.POST("/logout", middleware.RequireRefresh(h.refreshToken, sec.JWTRefreshSecret, true), h.Logout)
		auth.POST("/logout-all", requireAccess, h.LogoutAll)
		auth.GET("/google", h.GoogleRedirect)
		auth.GET("/google/callback", h.GoogleCallback)
	}

	users := router.Group("/users")
	users.Use(requireAccess)
	users.GET("/me", h.Me)
	users.PATCH("/me", h.UpdateMe)

	notes := router.Group("/notes")
	notes.Use(requireAccess)
	{
		notes.GET("/tags", h.NoteTags)
		notes.POST("", h.CreateNote)
		notes.GET("", h.ListNotes)
		notes.GET("/:id", h.GetNote)
		notes.PATCH("/:id", h.UpdateNote)
		notes.DELETE("/:id", h.DeleteNote)
	}
}

// currentUserID reads the subject of the verified access token. Routes using
// it sit behind RequireAccess, so a miss is a wiring bug.
func currentUserID(c *gin.Context) (string, bool) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok || claims.UserID() == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return "", false
	}
	return claims.UserID(), true
}
