// Package databasetest provides in-memory repositories for tests of code that
// depends on the database repository interfaces.
package databasetest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/benvon/wellness-sessions/internal/database"
	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/google/uuid"
)

var (
	_ database.UserRepositoryInterface    = (*Users)(nil)
	_ database.SessionRepositoryInterface = (*Sessions)(nil)
)

// Users is an in-memory user repository keyed by provider id
type Users struct {
	mu     sync.Mutex
	byProv map[string]models.User
}

// NewUsers returns an empty user repository
func NewUsers() *Users {
	return &Users{byProv: map[string]models.User{}}
}

// GetByProviderID implements database.UserRepositoryInterface
func (m *Users) GetByProviderID(_ context.Context, providerID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byProv[providerID]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return &u, nil
}

// Create implements database.UserRepositoryInterface
func (m *Users) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	m.byProv[providerKey(u)] = *u
	return nil
}

// Update implements database.UserRepositoryInterface
func (m *Users) Update(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := providerKey(u)
	if _, ok := m.byProv[key]; !ok {
		return database.ErrUserNotFound
	}
	u.UpdatedAt = time.Now()
	m.byProv[key] = *u
	return nil
}

// Len returns the number of stored users
func (m *Users) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byProv)
}

func providerKey(u *models.User) string {
	if u.ProviderID == nil {
		return u.ID.String()
	}
	return *u.ProviderID
}

// Sessions is an in-memory session repository
type Sessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]models.Session
}

// NewSessions returns a repository holding seed
func NewSessions(seed ...models.Session) *Sessions {
	m := &Sessions{byID: map[uuid.UUID]models.Session{}}
	for _, s := range seed {
		m.byID[s.ID] = clone(s)
	}
	return m
}

// Create implements database.SessionRepositoryInterface
func (m *Sessions) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.byID[s.ID] = clone(*s)
	return nil
}

// GetByIDForUser implements database.SessionRepositoryInterface
func (m *Sessions) GetByIDForUser(_ context.Context, id, userID uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || s.UserID != userID {
		return nil, database.ErrSessionNotFound
	}
	s = clone(s)
	return &s, nil
}

// ListByUser implements database.SessionRepositoryInterface
func (m *Sessions) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Session, error) {
	return m.filter(func(s models.Session) bool { return s.UserID == userID }), nil
}

// ListPublished implements database.SessionRepositoryInterface
func (m *Sessions) ListPublished(_ context.Context) ([]*models.Session, error) {
	return m.filter(func(s models.Session) bool { return s.IsPublished() }), nil
}

// Update implements database.SessionRepositoryInterface
func (m *Sessions) Update(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[s.ID]
	if !ok || cur.UserID != s.UserID {
		return database.ErrSessionNotFound
	}
	s.CreatedAt = cur.CreatedAt
	s.UpdatedAt = time.Now()
	m.byID[s.ID] = clone(*s)
	return nil
}

// Get returns a stored session regardless of owner
func (m *Sessions) Get(id uuid.UUID) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return clone(s), ok
}

// Len returns the number of stored sessions
func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// filter returns matching sessions, most recently updated first
func (m *Sessions) filter(keep func(models.Session) bool) []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Session{}
	for _, s := range m.byID {
		if keep(s) {
			s := clone(s)
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func clone(s models.Session) models.Session {
	s.Tags = slices.Clone(s.Tags)
	return s
}
