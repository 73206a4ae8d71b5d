// Package memory is an in-process implementation of repository.Store. It is
// a test double for service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"notehub/internal/models"
	"notehub/internal/repository"
)

type state struct {
	users    map[string]models.User
	sessions map[string]models.Session
	notes    map[string]models.Note
}

// journal keeps the value each key had before a transaction first wrote it;
// nil means the key did not exist. Rolling back restores only those keys, so
// writes made outside the transaction survive.
type journal struct {
	users    map[string]*models.User
	sessions map[string]*models.Session
	notes    map[string]*models.Note
}

func newJournal() *journal {
	return &journal{
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
		notes:    map[string]*models.Note{},
	}
}

// The touch methods are called with the write lock held and accept a nil
// journal for writes outside a transaction.
func (j *journal) touchUser(d state, id string) {
	if j != nil {
		remember(j.users, d.users, id)
	}
}

func (j *journal) touchSession(d state, hash string) {
	if j != nil {
		remember(j.sessions, d.sessions, hash)
	}
}

func (j *journal) touchNote(d state, id string) {
	if j != nil {
		remember(j.notes, d.notes, id)
	}
}

func (j *journal) rollback(d state) {
	restore(d.users, j.users)
	restore(d.sessions, j.sessions)
	restore(d.notes, j.notes)
}

func remember[V any](prior map[string]*V, data map[string]V, key string) {
	if _, seen := prior[key]; seen {
		return
	}
	if v, ok := data[key]; ok {
		prior[key] = &v
		return
	}
	prior[key] = nil
}

func restore[V any](data map[string]V, prior map[string]*V) {
	for key, v := range prior {
		if v == nil {
			delete(data, key)
			continue
		}
		data[key] = *v
	}
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
	now  func() time.Time

	sessionCreateErr error
}

func New() *Store {
	return &Store{
		data: state{
			users:    map[string]models.User{},
			sessions: map[string]models.Session{},
			notes:    map[string]models.Note{},
		},
		now: time.Now,
	}
}

func (s *Store) Users() repository.UserStore       { return userStore{s: s} }
func (s *Store) Sessions() repository.SessionStore { return sessionStore{s: s} }
func (s *Store) Notes() repository.NoteStore       { return noteStore{s: s} }

// WithTx serializes transactions. When fn fails the keys it wrote are put
// back to their previous values.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := newJournal()
	if err := fn(txStore{s: s, j: j}); err != nil {
		s.mu.Lock()
		j.rollback(s.data)
		s.mu.Unlock()
		return err
	}
	return nil
}

type txStore struct {
	s *Store
	j *journal
}

func (t txStore) Users() repository.UserStore       { return userStore{s: t.s, j: t.j} }
func (t txStore) Sessions() repository.SessionStore { return sessionStore{s: t.s, j: t.j} }
func (t txStore) Notes() repository.NoteStore       { return noteStore{s: t.s, j: t.j} }

// WithTx inside a transaction joins it.
func (t txStore) WithTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(t)
}

// FailSessionCreate makes the next session insert return err.
func (s *Store) FailSessionCreate(err error) {
	s.mu.Lock()
	s.sessionCreateErr = err
	s.mu.Unlock()
}

func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.sessions)
}

func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.users)
}

type userStore struct {
	s *Store
	j *journal
}

func (u userStore) Create(_ context.Context, user models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, existing := range u.s.data.users {
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	now := u.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	u.j.touchUser(u.s.data, user.ID)
	u.s.data.users[user.ID] = user
	return nil
}

func (u userStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.data.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (u userStore) GetByID(_ context.Context, id string) (models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.data.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (u userStore) Update(_ context.Context, user models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	existing, ok := u.s.data.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	existing.Name = user.Name
	existing.AvatarURL = user.AvatarURL
	existing.UpdatedAt = u.s.now()
	u.j.touchUser(u.s.data, user.ID)
	u.s.data.users[user.ID] = existing
	return nil
}

type sessionStore struct {
	s *Store
	j *journal
}

func (ss sessionStore) Create(_ context.Context, session models.Session) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if err := ss.s.sessionCreateErr; err != nil {
		ss.s.sessionCreateErr = nil
		return err
	}
	session.CreatedAt = ss.s.now()
	session.User = models.User{}
	ss.j.touchSession(ss.s.data, session.RefreshTokenHash)
	ss.s.data.sessions[session.RefreshTokenHash] = session
	return nil
}

func (ss sessionStore) FindByHash(_ context.Context, hash string) (models.Session, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()

	session, ok := ss.s.data.sessions[hash]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	user, ok := ss.s.data.users[session.UserID]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	session.User = user
	return session, nil
}

func (ss sessionStore) DeleteByHash(_ context.Context, hash string) (bool, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if _, ok := ss.s.data.sessions[hash]; !ok {
		return false, nil
	}
	ss.j.touchSession(ss.s.data, hash)
	delete(ss.s.data.sessions, hash)
	return true, nil
}

func (ss sessionStore) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var n int64
	for hash, session := range ss.s.data.sessions {
		if session.UserID == userID {
			ss.j.touchSession(ss.s.data, hash)
			delete(ss.s.data.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (ss sessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var n int64
	for hash, session := range ss.s.data.sessions {
		if session.Expired(now) {
			ss.j.touchSession(ss.s.data, hash)
			delete(ss.s.data.sessions, hash)
			n++
		}
	}
	return n, nil
}

type noteStore struct {
	s *Store
	j *journal
}

func (ns noteStore) Create(_ context.Context, note models.Note) (models.Note, error) {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()

	now := ns.s.now()
	note.CreatedAt = now
	note.UpdatedAt = now
	ns.j.touchNote(ns.s.data, note.ID)
	ns.s.data.notes[note.ID] = note
	return note, nil
}

func (ns noteStore) GetByID(_ context.Context, userID string, id string) (models.Note, error) {
	ns.s.mu.RLock()
	defer ns.s.mu.RUnlock()

	note, ok := ns.s.data.notes[id]
	if !ok || note.UserID != userID {
		return models.Note{}, repository.ErrNoteNotFound
	}
	return note, nil
}

func (ns noteStore) List(_ context.Context, userID string, filter models.NoteFilter) ([]models.Note, int64, error) {
	ns.s.mu.RLock()
	defer ns.s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]models.Note, 0)
	for _, note := range ns.s.data.notes {
		if note.UserID != userID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(note.Title), search) &&
			!strings.Contains(strings.ToLower(note.Content), search) {
			continue
		}
		if filter.Tag != nil && note.Tag != *filter.Tag {
			continue
		}
		if filter.IsDone != nil && note.IsDone != *filter.IsDone {
			continue
		}
		matched = append(matched, note)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		less := noteLess(matched[i], matched[j], filter.SortBy)
		if filter.SortOrder == models.SortAsc {
			return less
		}
		return noteLess(matched[j], matched[i], filter.SortBy)
	})

	total := int64(len(matched))
	start := min(filter.Offset, len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	return matched[start:end], total, nil
}

func noteLess(a, b models.Note, field models.NoteSortField) bool {
	switch field {
	case models.NoteSortTitle:
		if a.Title != b.Title {
			return a.Title < b.Title
		}
	case models.NoteSortCreatedAt:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	case models.NoteSortUpdatedAt:
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	return a.ID < b.ID
}

func (ns noteStore) Update(_ context.Context, userID string, id string, patch models.NotePatch) (models.Note, error) {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()

	note, ok := ns.s.data.notes[id]
	if !ok || note.UserID != userID {
		return models.Note{}, repository.ErrNoteNotFound
	}
	if patch.Title != nil {
		note.Title = *patch.Title
	}
	if patch.Content != nil {
		note.Content = *patch.Content
	}
	if patch.IsDone != nil {
		note.IsDone = *patch.IsDone
	}
	if patch.Tag != nil {
		note.Tag = *patch.Tag
	}
	note.UpdatedAt = ns.s.now()
	ns.j.touchNote(ns.s.data, id)
	ns.s.data.notes[id] = note
	return note, nil
}

func (ns noteStore) Delete(_ context.Context, userID string, id string) error {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()

	note, ok := ns.s.data.notes[id]
	if !ok || note.UserID != userID {
		return repository.ErrNoteNotFound
	}
	ns.j.touchNote(ns.s.data, id)
	delete(ns.s.data.notes, id)
	return nil
}
