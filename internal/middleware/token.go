package middleware

import (
	"net/http"
	"strings"

	"notehub/internal/config"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// TokenExtractor pulls a raw token out of a request.
type TokenExtractor func(*http.Request) (string, bool)

func FromCookie(name string) TokenExtractor {
	return func(r *http.Request) (string, bool) {
		cookie, err := r.Cookie(name)
		if err != nil || cookie.Value == "" {
			return "", false
		}
		return cookie.Value, true
	}
}

func FromBearer() TokenExtractor {
	return func(r *http.Request) (string, bool) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}
}

// Extractors returns the access and refresh strategies for a transport.
func Extractors(transport string) (access TokenExtractor, refresh TokenExtractor) {
	if transport == config.TransportBearer {
		return FromBearer(), FromBearer()
	}
	return FromCookie(AccessCookie), FromCookie(RefreshCookie)
}
