package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"notehub/internal/config"
	"notehub/internal/ids"
	"notehub/internal/media/sniffer"
	"notehub/internal/models"
	"notehub/internal/repository"
	"notehub/internal/security"
	"notehub/internal/storage"
)

// oauthSecretBytes is the entropy of the unusable password given to users
// provisioned through an identity provider.
const oauthSecretBytes = 30

const (
	defaultAccessTTLMinutes = 15
	defaultRefreshTTLDays   = 7
)

type AuthEvents interface {
	AuthEvent(event string, result string)
}

type AuthService struct {
	store  repository.Store
	hasher *security.PasswordHasher
	images storage.ImageHost
	cfg    config.SecurityConfig
	events AuthEvents
	log    zerolog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	store repository.Store,
	hasher *security.PasswordHasher,
	images storage.ImageHost,
	cfg config.SecurityConfig,
	events AuthEvents,
	log zerolog.Logger,
) *AuthService {
	if cfg.AccessTTLMinutes <= 0 {
		cfg.AccessTTLMinutes = defaultAccessTTLMinutes
	}
	if cfg.RefreshTTLDays <= 0 {
		cfg.RefreshTTLDays = defaultRefreshTTLDays
	}
	return &AuthService{
		store:  store,
		hasher: hasher,
		images: images,
		cfg:    cfg,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Avatar   *sniffer.Image
}

type OAuthProfile struct {
	Name      string
	Email     string
	AvatarURL string
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (TokenPair, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if input.Email == "" || input.Password == "" {
		return TokenPair{}, fmt.Errorf("%w: email and password required", ErrInvalidInput)
	}

	if _, err := s.store.Users().FindByEmail(ctx, input.Email); err == nil {
		s.record("register", "duplicate")
		return TokenPair{}, ErrDuplicateIdentity
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return TokenPair{}, err
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return TokenPair{}, err
	}

	// the upload and the insert that references it finish together
	ctx = context.WithoutCancel(ctx)

	var avatarURL *string
	if input.Avatar != nil {
		url, err := uploadAvatar(ctx, s.images, *input.Avatar)
		if err != nil {
			return TokenPair{}, err
		}
		avatarURL = &url
	}

	user := models.User{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: passwordHash,
		AvatarURL:    avatarURL,
	}

	var pair TokenPair
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		issued, err := s.issueAndPersist(ctx, tx.Sessions(), user)
		pair = issued
		return err
	})
	if err != nil {
		if avatarURL != nil {
			s.log.Warn().Err(err).Str("avatar_url", *avatarURL).Msg("registration failed, uploaded avatar orphaned")
		}
		if errors.Is(err, repository.ErrEmailTaken) {
			s.record("register", "duplicate")
			return TokenPair{}, ErrDuplicateIdentity
		}
		return TokenPair{}, err
	}

	s.record("register", "success")
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return pair, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (TokenPair, error) {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.burnHash(password)
			s.record("login", "failure")
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
	}
	if err != nil || !ok {
		s.record("login", "failure")
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issueAndPersist(context.WithoutCancel(ctx), s.store.Sessions(), user)
	if err != nil {
		return TokenPair{}, err
	}
	s.record("login", "success")
	return pair, nil
}

// Logout consumes the refresh token. A token with no session is not an
// error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if _, err := s.store.Sessions().DeleteByHash(ctx, security.HashRefreshToken(refreshToken)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.record("logout", "success")
	return nil
}

// Refresh rotates a refresh token: the presented token's session is
// deleted and a new pair is issued in the same transaction. Each token can
// be redeemed once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	hash := security.HashRefreshToken(refreshToken)

	session, err := s.store.Sessions().FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.record("refresh", "denied")
			return TokenPair{}, ErrAccessDenied
		}
		return TokenPair{}, err
	}

	ctx = context.WithoutCancel(ctx)
	if session.Expired(s.now()) {
		if _, err := s.store.Sessions().DeleteByHash(ctx, hash); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("delete expired session failed")
		}
		s.record("refresh", "expired")
		return TokenPair{}, ErrAccessDenied
	}

	var pair TokenPair
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		deleted, err := tx.Sessions().DeleteByHash(ctx, hash)
		if err != nil {
			return fmt.Errorf("consume session: %w", err)
		}
		if !deleted {
			return ErrAccessDenied
		}
		pair, err = s.issueAndPersist(ctx, tx.Sessions(), session.User)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			s.record("refresh", "denied")
		}
		return TokenPair{}, err
	}

	s.record("refresh", "success")
	return pair, nil
}

// ValidateOAuthUser returns the user owning the provider-verified email,
// creating one on first sign-in.
func (s *AuthService) ValidateOAuthUser(ctx context.Context, profile OAuthProfile) (models.User, error) {
	email := normalizeEmail(profile.Email)
	if email == "" {
		return models.User{}, fmt.Errorf("%w: email required", ErrInvalidInput)
	}

	user, err := s.store.Users().FindByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	secret, err := security.RandomSecret(oauthSecretBytes)
	if err != nil {
		return models.User{}, err
	}
	passwordHash, err := s.hasher.Hash(secret)
	if err != nil {
		return models.User{}, err
	}

	user = models.User{
		ID:           ids.New(),
		Name:         strings.TrimSpace(profile.Name),
		Email:        email,
		PasswordHash: passwordHash,
	}
	if profile.AvatarURL != "" {
		avatar := profile.AvatarURL
		user.AvatarURL = &avatar
	}

	if err := s.store.Users().Create(context.WithoutCancel(ctx), user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return s.store.Users().FindByEmail(ctx, email)
		}
		return models.User{}, err
	}

	s.record("oauth_provision", "success")
	s.log.Info().Str("user_id", user.ID).Msg("oauth user provisioned")
	return user, nil
}

func (s *AuthService) LoginOAuth(ctx context.Context, email string) (TokenPair, error) {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.record("oauth_login", "failure")
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	pair, err := s.issueAndPersist(context.WithoutCancel(ctx), s.store.Sessions(), user)
	if err != nil {
		return TokenPair{}, err
	}
	s.record("oauth_login", "success")
	return pair, nil
}

func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.Sessions().DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.record("revoke_all", "success")
	return n, nil
}

func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.Sessions().DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

func (s *AuthService) issueAndPersist(ctx context.Context, sessions repository.SessionStore, user models.User) (TokenPair, error) {
	now := s.now()

	var pair TokenPair
	var g errgroup.Group
	g.Go(func() error {
		token, err := security.IssueToken(s.cfg.JWTAccessSecret, user.ID, user.Email, s.cfg.AccessTTL(), now)
		pair.AccessToken = token
		return err
	})
	g.Go(func() error {
		token, err := security.IssueToken(s.cfg.JWTRefreshSecret, user.ID, user.Email, s.cfg.RefreshTTL(), now)
		pair.RefreshToken = token
		return err
	})
	if err := g.Wait(); err != nil {
		return TokenPair{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		RefreshTokenHash: security.HashRefreshToken(pair.RefreshToken),
		ExpiresAt:        now.Add(s.cfg.RefreshTTL()),
	}
	if err := sessions.Create(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("create session: %w", err)
	}
	return pair, nil
}

// burnHash spends one password verification so unknown emails cost the
// same as wrong passwords.
func (s *AuthService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

func (s *AuthService) record(event string, result string) {
	if s.events != nil {
		s.events.AuthEvent(event, result)
	}
}

func uploadAvatar(ctx context.Context, images storage.ImageHost, avatar sniffer.Image) (string, error) {
	if images == nil {
		return "", errors.New("image host not configured")
	}
	url, err := images.Upload(ctx, "avatar_"+uuid.NewString(), avatar.MIME, avatar.Data)
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return url, nil
}
