package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"notehub/internal/security"
)

const (
	claimsKey       = "access_claims"
	refreshTokenKey = "refresh_token"
)

// RequireAccess rejects the request with 401 unless it carries a valid,
// unexpired access token.
func RequireAccess(extract TokenExtractor, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := extract(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		claims, err := security.ParseToken(tokenStr, secret)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, security.ErrTokenExpired) {
				code = "token_expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRefresh validates the refresh token: missing or invalid is 401,
// expired is 403. With optional set the request always proceeds and only a
// verified (or merely expired) token is passed on.
func RequireRefresh(extract TokenExtractor, secret string, optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := extract(c.Request)
		if !ok {
			if optional {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		claims, err := security.ParseToken(tokenStr, secret)
		switch {
		case err == nil:
			c.Set(claimsKey, claims)
			c.Set(refreshTokenKey, tokenStr)
		case errors.Is(err, security.ErrTokenExpired):
			if !optional {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token_expired"})
				return
			}
			c.Set(refreshTokenKey, tokenStr)
		default:
			if !optional {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
				return
			}
		}

		c.Next()
	}
}

func CurrentClaims(c *gin.Context) (*security.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*security.Claims)
	return claims, ok && claims != nil
}

func RefreshToken(c *gin.Context) string {
	return c.GetString(refreshTokenKey)
}
