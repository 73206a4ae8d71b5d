package models

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	AvatarURL    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time

	// User is resolved when the session is looked up by hash.
	User User
}

func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
