package database

import (
	"context"

	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/google/uuid"
)

// UserRepositoryInterface defines the user operations the auth middleware needs.
// This interface enables better testability by allowing mock implementations
type UserRepositoryInterface interface {
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// SessionRepositoryInterface defines the session operations the handlers need
type SessionRepositoryInterface interface {
	Create(ctx context.Context, s *models.Session) error
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
	ListPublished(ctx context.Context) ([]*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface    = (*UserRepository)(nil)
	_ SessionRepositoryInterface = (*SessionRepository)(nil)
)
