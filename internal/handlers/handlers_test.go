package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notehub/internal/config"
	"notehub/internal/metrics"
	"notehub/internal/middleware"
	"notehub/internal/ratelimit"
	"notehub/internal/repository/memory"
	"notehub/internal/security"
	"notehub/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var pngAvatar = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 64)...)

type fakeImageHost struct{}

func (fakeImageHost) Upload(_ context.Context, name string, _ string, _ []byte) (string, error) {
	return "https://img.example.com/" + name, nil
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []map[string]any
	err  error
}

func (f *fakeJobs) Enqueue(_ context.Context, taskType string, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	job := map[string]any{"type": taskType}
	for k, v := range fields {
		job[k] = v
	}
	f.jobs = append(f.jobs, job)
	return "1-0", nil
}

type testApp struct {
	router *gin.Engine
	store  *memory.Store
	cfg    *config.AppConfig
}

type option func(*Dependencies)

func newTestApp(t *testing.T, transport string, opts ...option) testApp {
	t.Helper()

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret:  "handler-access",
			JWTRefreshSecret: "handler-refresh",
			AccessTTLMinutes: 15,
			RefreshTTLDays:   7,
			TokenTransport:   transport,
		},
		Cookies: config.CookieConfig{
			AccessMaxAge:  15 * time.Minute,
			RefreshMaxAge: 7 * 24 * time.Hour,
			Path:          "/",
		},
		OAuth: config.OAuthConfig{FrontendURL: "http://localhost:3001"},
	}

	store := memory.New()
	hasher := security.NewPasswordHasher(security.AlgorithmBcrypt, 4)
	m := metrics.New()
	deps := Dependencies{
		Log:     zerolog.Nop(),
		Config:  cfg,
		Auth:    service.NewAuthService(store, hasher, fakeImageHost{}, cfg.Security, m, zerolog.Nop()),
		Users:   service.NewUserService(store.Users(), fakeImageHost{}, zerolog.Nop()),
		Notes:   service.NewNoteService(store.Notes(), zerolog.Nop()),
		Limiter: ratelimit.NewMemory(100, time.Minute),
		Metrics: m,
		Checks:  map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(&deps)
	}

	r := gin.New()
	NewHandlerSet(deps).Register(&r.RouterGroup)
	return testApp{router: r, store: store, cfg: cfg}
}

func (a testApp) do(method string, path string, body any, prepare ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range prepare {
		fn(req)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookies(cookies ...*http.Cookie) func(*http.Request) {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func registerBearer(t *testing.T, app testApp, email string) authResponse {
	t.Helper()
	rec := app.do(http.MethodPost, "/auth/register", gin.H{"name": "Ann", "email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	decode(t, rec, &resp)
	return resp
}

func TestRegisterSetsCookies(t *testing.T) {
	app := newTestApp(t, config.TransportCookie)

	rec := app.do(http.MethodPost, "/auth/register", gin.H{"name": "Ann", "email": "ann@example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp authResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Registration successful", resp.Message)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, 7*24*3600, resp.RefreshExpiresIn)
	assert.Empty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)

	access := findCookie(rec, middleware.AccessCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.False(t, access.Secure)
	assert.Equal(t, 900, access.MaxAge)
	require.NotNil(t, findCookie(rec, middleware.RefreshCookie))
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)
	registerBearer(t, app, "dup@example.com")

	rec := app.do(http.MethodPost, "/auth/register", gin.H{"name": "Ann", "email": "DUP@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(http.MethodPost, "/auth/register", gin.H{"name": "Ann", "email": "short@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(http.MethodPost, "/auth/register", gin.H{"email": "noname@example.com", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, app.store.UserCount())
}

func multipartBody(t *testing.T, fields map[string]string, avatar []byte, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if avatar != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(avatar)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestRegisterMultipartWithAvatar(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)

	body, contentType := multipartBody(t, map[string]string{
		"name": "Ann", "email": "pic@example.com", "password": "password123",
	}, pngAvatar, "image/png")
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp authResponse
	decode(t, rec, &resp)
	me := app.do(http.MethodGet, "/users/me", nil, bearer(resp.AccessToken))
	require.Equal(t, http.StatusOK, me.Code)
	var user userResponse
	decode(t, me, &user)
	require.NotNil(t, user.Avatar)
	assert.True(t, strings.HasPrefix(*user.Avatar, "https://img.example.com/avatar_"))
}

func TestRegisterRejectsNonImageAvatar(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)

	body, contentType := multipartBody(t, map[string]string{
		"name": "Ann", "email": "gif@example.com", "password": "password123",
	}, []byte("GIF89a not allowed"), "image/gif")
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, app.store.UserCount())
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)
	registerBearer(t, app, "login@example.com")

	rec := app.do(http.MethodPost, "/auth/login", gin.H{"email": "login@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Login successful", resp.Message)
	assert.NotEmpty(t, resp.AccessToken)

	wrong := app.do(http.MethodPost, "/auth/login", gin.H{"email": "login@example.com", "password": "nope-nope"})
	unknown := app.do(http.MethodPost, "/auth/login", gin.H{"email": "ghost@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	assert.Contains(t, wrong.Body.String(), "Invalid credentials")
}

func TestLoginIsRateLimited(t *testing.T) {
	app := newTestApp(t, config.TransportBearer, func(d *Dependencies) {
		d.Limiter = ratelimit.NewMemory(2, time.Minute)
	})

	for i := 0; i < 2; i++ {
		rec := app.do(http.MethodPost, "/auth/login", gin.H{"email": "x@example.com", "password": "password123"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := app.do(http.MethodPost, "/auth/login", gin.H{"email": "x@example.com", "password": "password123"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRefreshLogoutScenario(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)
	first := registerBearer(t, app, "flow@example.com")

	rec := app.do(http.MethodPost, "/auth/refresh", nil, bearer(first.RefreshToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second authResponse
	decode(t, rec, &second)
	assert.Equal(t, "Tokens refreshed", second.Message)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// the consumed token is refused
	rec = app.do(http.MethodPost, "/auth/refresh", nil, bearer(first.RefreshToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/auth/logout", nil, bearer(second.RefreshToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logout successful"}`, rec.Body.String())

	rec = app.do(http.MethodPost, "/auth/refresh", nil, bearer(second.RefreshToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// logout stays idempotent
	rec = app.do(http.MethodPost, "/auth/logout", nil, bearer(second.RefreshToken))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshGuard(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)

	rec := app.do(http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := security.IssueToken(app.cfg.Security.JWTRefreshSecret, "u", "u@example.com", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	rec = app.do(http.MethodPost, "/auth/refresh", nil, bearer(expired))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// an access token is not a refresh token
	pair := registerBearer(t, app, "guard@example.com")
	rec = app.do(http.MethodPost, "/auth/refresh", nil, bearer(pair.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieRefreshAndLogoutClearCookies(t *testing.T) {
	app := newTestApp(t, config.TransportCookie)

	rec := app.do(http.MethodPost, "/auth/register", gin.H{"name": "Ann", "email": "c@example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code)
	refresh := findCookie(rec, middleware.RefreshCookie)
	require.NotNil(t, refresh)

	rec = app.do(http.MethodPost, "/auth/refresh", nil, withCookies(refresh))
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := findCookie(rec, middleware.RefreshCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	rec = app.do(http.MethodPost, "/auth/logout", nil, withCookies(rotated))
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := findCookie(rec, middleware.AccessCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
	assert.Equal(t, 0, app.store.SessionCount())
}

func TestLogoutAll(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		app := newTestApp(t, config.TransportBearer)
		pair := registerBearer(t, app, "all@example.com")
		app.do(http.MethodPost, "/auth/login", gin.H{"email": "all@example.com", "password": "password123"})
		require.Equal(t, 2, app.store.SessionCount())

		rec := app.do(http.MethodPost, "/auth/logout-all", nil, bearer(pair.AccessToken))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"revoked":2`)
		assert.Equal(t, 0, app.store.SessionCount())
	})

	t.Run("queued", func(t *testing.T) {
		jobs := &fakeJobs{}
		app := newTestApp(t, config.TransportBearer, func(d *Dependencies) { d.Jobs = jobs })
		pair := registerBearer(t, app, "queued@example.com")

		rec := app.do(http.MethodPost, "/auth/logout-all", nil, bearer(pair.AccessToken))
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Len(t, jobs.jobs, 1)
		assert.Equal(t, "revoke_user", jobs.jobs[0]["type"])
		assert.NotEmpty(t, jobs.jobs[0]["userId"])
		assert.Equal(t, 1, app.store.SessionCount())
	})

	t.Run("queue down falls back", func(t *testing.T) {
		jobs := &fakeJobs{err: errors.New("redis down")}
		app := newTestApp(t, config.TransportBearer, func(d *Dependencies) { d.Jobs = jobs })
		pair := registerBearer(t, app, "fallback@example.com")

		rec := app.do(http.MethodPost, "/auth/logout-all", nil, bearer(pair.AccessToken))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, app.store.SessionCount())
	})
}

func TestProtectedRoutesNeedAccessToken(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)

	for _, path := range []string{"/users/me", "/notes", "/notes/tags"} {
		rec := app.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestUpdateMe(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)
	pair := registerBearer(t, app, "me@example.com")

	rec := app.do(http.MethodPatch, "/users/me", gin.H{"name": "  Annie "}, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user userResponse
	decode(t, rec, &user)
	assert.Equal(t, "Annie", user.Name)
	assert.Equal(t, "me@example.com", user.Email)

	rec = app.do(http.MethodPatch, "/users/me", gin.H{"name": " "}, bearer(pair.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType := multipartBody(t, nil, pngAvatar, "image/png")
	req := httptest.NewRequest(http.MethodPatch, "/users/me", body)
	req.Header.Set("Content-Type", contentType)
	bearer(pair.AccessToken)(req)
	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &user)
	require.NotNil(t, user.Avatar)
	assert.Equal(t, "Annie", user.Name)
}

func TestNotesCRUD(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)
	ann := registerBearer(t, app, "ann@example.com")
	bob := registerBearer(t, app, "bob@example.com")

	rec := app.do(http.MethodGet, "/notes/tags", nil, bearer(ann.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"todo"`)

	rec = app.do(http.MethodPost, "/notes", gin.H{"title": "Groceries", "content": "milk", "tag": "shopping"}, bearer(ann.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var note noteResponse
	decode(t, rec, &note)
	assert.Equal(t, "shopping", note.Tag)

	rec = app.do(http.MethodPost, "/notes", gin.H{"title": "ok", "tag": "todo"}, bearer(ann.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(http.MethodPost, "/notes", gin.H{"title": "Bad tag", "tag": "nope"}, bearer(ann.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// other users cannot see or touch the note
	rec = app.do(http.MethodGet, "/notes/"+note.ID, nil, bearer(bob.AccessToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.do(http.MethodDelete, "/notes/"+note.ID, nil, bearer(bob.AccessToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(http.MethodPatch, "/notes/"+note.ID, gin.H{"isDone": true}, bearer(ann.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &note)
	assert.True(t, note.IsDone)
	assert.Equal(t, "Groceries", note.Title)

	rec = app.do(http.MethodDelete, "/notes/"+note.ID, nil, bearer(ann.AccessToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(http.MethodGet, "/notes/"+note.ID, nil, bearer(ann.AccessToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNotes(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)
	ann := registerBearer(t, app, "list@example.com")

	for _, title := range []string{"Alpha plan", "Beta plan", "Gamma list"} {
		rec := app.do(http.MethodPost, "/notes", gin.H{"title": title, "tag": "work"}, bearer(ann.AccessToken))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := app.do(http.MethodGet, "/notes?search=plan&perPage=1&page=2&sortBy=title&sortOrder=asc", nil, bearer(ann.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Data        []noteResponse `json:"data"`
		Page        int            `json:"page"`
		PerPage     int            `json:"perPage"`
		TotalItems  int64          `json:"totalItems"`
		TotalPages  int            `json:"totalPages"`
		HasNextPage bool           `json:"hasNextPage"`
	}
	decode(t, rec, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Beta plan", page.Data[0].Title)
	assert.Equal(t, int64(2), page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasNextPage)

	rec = app.do(http.MethodGet, "/notes?isDone=maybe", nil, bearer(ann.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(http.MethodGet, "/notes?sortBy=password", nil, bearer(ann.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(http.MethodGet, "/notes?isDone=true", nil, bearer(ann.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalItems":0`)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, config.TransportCookie, func(d *Dependencies) {
		d.Checks = map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}
	})

	rec := app.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	decode(t, rec, &resp)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "error"}, resp.Checks)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, config.TransportBearer)
	registerBearer(t, app, "metrics@example.com")

	rec := app.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `notehub_auth_events_total{event="register",result="success"} 1`)
}

func TestGoogleRoutesDisabled(t *testing.T) {
	app := newTestApp(t, config.TransportCookie)

	rec := app.do(http.MethodGet, "/auth/google", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.do(http.MethodGet, "/auth/google/callback?state=x&code=y", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
