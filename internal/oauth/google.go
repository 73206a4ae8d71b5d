package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"notehub/internal/config"
)

const GoogleIssuer = "https://accounts.google.com"

var ErrEmailNotVerified = errors.New("provider email is not verified")

// Profile is the identity asserted by a verified ID token.
type Profile struct {
	Subject string
	Name    string
	Email   string
	Picture string
}

type Provider struct {
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewGoogleProvider(ctx context.Context, cfg config.GoogleConfig) (*Provider, error) {
	return NewProvider(ctx, GoogleIssuer, cfg)
}

// NewProvider discovers the issuer and builds the code-flow client.
func NewProvider(ctx context.Context, issuer string, cfg config.GoogleConfig) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("oauth client id and secret are required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	return &Provider{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the authorization code for tokens and returns the profile
// from the verified ID token.
func (p *Provider) Exchange(ctx context.Context, code string) (Profile, error) {
	if code == "" {
		return Profile{}, fmt.Errorf("missing authorization code")
	}

	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Profile{}, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Profile{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Profile{}, fmt.Errorf("parse claims: %w", err)
	}
	if claims.Email == "" {
		return Profile{}, fmt.Errorf("missing email in id token")
	}
	if !claims.EmailVerified {
		return Profile{}, ErrEmailNotVerified
	}

	return Profile{
		Subject: idToken.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}, nil
}
