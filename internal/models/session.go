package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the publication state of a session
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusPublished SessionStatus = "published"
)

// Session is a wellness session authored by a user. Drafts are only visible to
// their owner; published sessions are listed publicly.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user"`
	Title       string        `json:"title"`
	Tags        []string      `json:"tags"`
	JSONFileURL string        `json:"json_file_url"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsPublished reports whether the session is publicly listed
func (s *Session) IsPublished() bool {
	return s.Status == SessionStatusPublished
}
