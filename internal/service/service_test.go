package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"notehub/internal/config"
	"notehub/internal/repository/memory"
	"notehub/internal/security"
)

var testSecurity = config.SecurityConfig{
	JWTAccessSecret:  "test-access-secret",
	JWTRefreshSecret: "test-refresh-secret",
	AccessTTLMinutes: 15,
	RefreshTTLDays:   7,
}

type fakeImageHost struct {
	mu      sync.Mutex
	uploads []string
	err     error
}

func (f *fakeImageHost) Upload(_ context.Context, name string, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, name)
	return "https://img.example.com/" + name, nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *recordedEvents) AuthEvent(event string, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string]int{}
	}
	r.events[event+"/"+result]++
}

func (r *recordedEvents) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[key]
}

type authFixture struct {
	svc    *AuthService
	store  *memory.Store
	images *fakeImageHost
	events *recordedEvents
}

func newAuthFixture() authFixture {
	store := memory.New()
	images := &fakeImageHost{}
	events := &recordedEvents{}
	hasher := security.NewPasswordHasher(security.AlgorithmBcrypt, 4)
	svc := NewAuthService(store, hasher, images, testSecurity, events, zerolog.Nop())
	return authFixture{svc: svc, store: store, images: images, events: events}
}
