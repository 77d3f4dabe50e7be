package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxTitleLength is the longest accepted session title, in characters
	MaxTitleLength = 255
	// MaxTagLength is the longest accepted tag, in characters
	MaxTagLength = 50
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	// ErrTitleRequired is returned when publishing a session without a title
	ErrTitleRequired = errors.New("title is required to publish")
	// ErrFileRequired is returned when publishing a session without a session file
	ErrFileRequired = errors.New("json_file_url is required to publish")
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("session_status", validateSessionStatus); err != nil {
		panic(fmt.Sprintf("failed to register session_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("notblank_tag", validateTag); err != nil {
		panic(fmt.Sprintf("failed to register notblank_tag validator: %v", err))
	}
}

func validateSessionStatus(fl validator.FieldLevel) bool {
	switch models.SessionStatus(fl.Field().String()) {
	case models.SessionStatusDraft, models.SessionStatusPublished:
		return true
	default:
		return false
	}
}

func validateTag(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateTitle checks the title length. Blank titles are allowed on drafts.
func ValidateTitle(title string) error {
	if err := Validate.Var(title, fmt.Sprintf("max=%d", MaxTitleLength)); err != nil {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	return nil
}

// NormalizeTags trims every tag and rejects blank, overlong or duplicate tags.
// The input order is kept.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, SanitizeText(tag))
	}
	if err := Validate.Var(out, fmt.Sprintf("dive,notblank_tag,max=%d", MaxTagLength)); err != nil {
		return nil, fmt.Errorf("each tag must be non-blank and at most %d characters", MaxTagLength)
	}
	if err := Validate.Var(out, "unique"); err != nil {
		return nil, errors.New("tags must not contain duplicates")
	}
	return out, nil
}

// ValidateFileURL accepts an empty value or an absolute http(s) URL
func ValidateFileURL(raw string) error {
	if err := Validate.Var(raw, "omitempty,http_url"); err != nil {
		return fmt.Errorf("invalid json_file_url: must be an http or https URL")
	}
	return nil
}

// ValidateSessionStatus validates a SessionStatus string value
func ValidateSessionStatus(value string) error {
	if err := Validate.Var(value, "session_status"); err != nil {
		return fmt.Errorf("invalid status: %s (must be 'draft' or 'published')", value)
	}
	return nil
}

// ValidatePublishable checks the fields a published session must carry
func ValidatePublishable(s *models.Session) error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(s.JSONFileURL) == "" {
		return ErrFileRequired
	}
	return nil
}
