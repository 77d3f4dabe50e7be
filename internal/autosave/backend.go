package autosave

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

// DraftStatus is the status marker every autosave request carries.
const DraftStatus = "draft"

// Identity is the acting user as reported by the identity endpoint.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// SaveRequest is the payload sent to the draft persistence endpoint. ID is set
// once the server has assigned the draft an identity so the same record is updated.
type SaveRequest struct {
	ID          *string  `json:"id,omitempty"`
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
	JSONFileURL *string  `json:"json_file_url,omitempty"`
	Status      string   `json:"status"`
	User        string   `json:"user"`
}

// SaveResult is the part of the persistence response the reconciler relies on.
type SaveResult struct {
	ID string `json:"id"`
}

// Backend is the remote side of the draft: who the caller is and where drafts go.
type Backend interface {
	Me(ctx context.Context, token *oauth2.Token) (Identity, error)
	SaveDraft(ctx context.Context, token *oauth2.Token, req SaveRequest) (SaveResult, error)
}

// CredentialProvider supplies the bearer token for both calls.
type CredentialProvider = oauth2.TokenSource

// NewSaveRequest builds the payload for d. The file reference is omitted when blank.
func NewSaveRequest(d Draft, userID, draftID string) SaveRequest {
	req := SaveRequest{
		Title:  d.Title,
		Tags:   d.Clone().Tags,
		Status: DraftStatus,
		User:   userID,
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}
	if strings.TrimSpace(d.FileReference) != "" {
		ref := d.FileReference
		req.JSONFileURL = &ref
	}
	if draftID != "" {
		id := draftID
		req.ID = &id
	}
	return req
}
