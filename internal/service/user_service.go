package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"notehub/internal/media/sniffer"
	"notehub/internal/models"
	"notehub/internal/repository"
	"notehub/internal/storage"
)

type UserService struct {
	users  repository.UserStore
	images storage.ImageHost
	log    zerolog.Logger
}

func NewUserService(users repository.UserStore, images storage.ImageHost, log zerolog.Logger) *UserService {
	return &UserService{users: users, images: images, log: log}
}

type UpdateProfileInput struct {
	Name   *string
	Avatar *sniffer.Image
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Update applies a profile change. The avatar, when present, is uploaded
// before the row is touched.
func (s *UserService) Update(ctx context.Context, id string, input UpdateProfileInput) (models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return models.User{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		user.Name = name
	}
	if input.Avatar != nil {
		url, err := uploadAvatar(ctx, s.images, *input.Avatar)
		if err != nil {
			return models.User{}, err
		}
		user.AvatarURL = &url
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	s.log.Debug().Str("user_id", id).Msg("profile updated")
	return s.Get(ctx, id)
}
