package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrSessionNotFound is returned when a session does not exist or belongs to someone else
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles user_sessions operations
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, title, tags, json_file_url, status, created_at, updated_at`

// Create inserts a session. ID is generated when unset.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO user_sessions (id, user_id, title, tags, json_file_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at
	`
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Tags = nonNilTags(s.Tags)

	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.UserID,
		s.Title,
		pq.Array(s.Tags),
		s.JSONFileURL,
		s.Status,
		time.Now(),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByIDForUser returns the session only if userID owns it
func (r *SessionRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListByUser returns every session of userID, most recently updated first
func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
}

// ListPublished returns all published sessions, most recently updated first
func (r *SessionRepository) ListPublished(ctx context.Context) ([]*models.Session, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE status = $1 ORDER BY updated_at DESC`,
		models.SessionStatusPublished)
}

// Update writes all mutable fields of a session owned by s.UserID
func (r *SessionRepository) Update(ctx context.Context, s *models.Session) error {
	query := `
		UPDATE user_sessions
		SET title = $3, tags = $4, json_file_url = $5, status = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2
		RETURNING created_at, updated_at
	`
	s.Tags = nonNilTags(s.Tags)
	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.UserID,
		s.Title,
		pq.Array(s.Tags),
		s.JSONFileURL,
		s.Status,
		time.Now(),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var (
		tags   pq.StringArray
		status string
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Title,
		&tags,
		&s.JSONFileURL,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.Tags = nonNilTags([]string(tags))
	return s, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
