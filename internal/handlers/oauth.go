package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"notehub/internal/oauth"
	"notehub/internal/service"
)

const (
	oauthLandingPath = "/api/auth/set-oauth"

	// oauthStateCookie binds an issued state to the browser that started
	// the flow.
	oauthStateCookie = "oauth_state"
	oauthStatePath   = "/auth/google"
)

func (h HandlerSet) oauthEnabled(c *gin.Context) bool {
	if h.oauth == nil || h.states == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "oauth_disabled"})
		return false
	}
	return true
}

func (h HandlerSet) GoogleRedirect(c *gin.Context) {
	if !h.oauthEnabled(c) {
		return
	}

	state, err := h.states.Issue(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.setStateCookie(c, state, seconds(h.states.TTL()))
	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// setStateCookie uses SameSite=Lax so the cookie survives the top-level
// redirect back from the provider.
func (h HandlerSet) setStateCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, value, maxAge, oauthStatePath, h.cfg.Cookies.Domain, h.cfg.IsProduction(), true)
}

func stateMatchesCookie(c *gin.Context, state string) bool {
	cookie, err := c.Cookie(oauthStateCookie)
	if err != nil || cookie == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie), []byte(state)) == 1
}

func (h HandlerSet) GoogleCallback(c *gin.Context) {
	if !h.oauthEnabled(c) {
		return
	}
	ctx := c.Request.Context()
	state := c.Query("state")
	bound := stateMatchesCookie(c, state)
	h.setStateCookie(c, "", -1)

	if providerErr := c.Query("error"); providerErr != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "oauth_denied", "message": providerErr})
		return
	}

	if !bound {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_state"})
		return
	}

	valid, err := h.states.Consume(ctx, state)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_state"})
		return
	}

	profile, err := h.oauth.Exchange(ctx, c.Query("code"))
	if err != nil {
		if errors.Is(err, oauth.ErrEmailNotVerified) {
			c.JSON(http.StatusForbidden, gin.H{"error": "email_not_verified"})
			return
		}
		h.log.Warn().Err(err).Msg("oauth exchange failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "oauth_failed"})
		return
	}

	user, err := h.auth.ValidateOAuthUser(ctx, service.OAuthProfile{
		Name:      profile.Name,
		Email:     profile.Email,
		AvatarURL: profile.Picture,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	pair, err := h.auth.LoginOAuth(ctx, user.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}

	query := url.Values{}
	query.Set("accessToken", pair.AccessToken)
	query.Set("expiresIn", strconv.Itoa(seconds(h.cfg.Cookies.AccessMaxAge)))
	query.Set("refreshToken", pair.RefreshToken)
	query.Set("refreshExpiresIn", strconv.Itoa(seconds(h.cfg.Cookies.RefreshMaxAge)))

	target := strings.TrimRight(h.cfg.OAuth.FrontendURL, "/") + oauthLandingPath + "?" + query.Encode()
	c.Redirect(http.StatusFound, target)
}
