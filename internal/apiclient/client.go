// Package apiclient talks to the session API on behalf of the CLI and the autosave loop.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/wellness-sessions/internal/autosave"
	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/benvon/wellness-sessions/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout is applied to the underlying http.Client
	DefaultTimeout = 15 * time.Second
	// maxResponseSize caps how much of a response body is read
	maxResponseSize = 1 << 20

	pathMe         = "/api/v1/users/me"
	pathSaveDraft  = "/api/v1/my-sessions/save-draft"
	pathPublish    = "/api/v1/my-sessions/publish"
	pathMySessions = "/api/v1/my-sessions"
	pathSessions   = "/api/v1/sessions"
)

// StatusError is returned when the API answers with a non-success status.
type StatusError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api responded %d: %s", e.StatusCode, msg)
}

// ErrMalformedResponse is returned when a success response cannot be decoded.
var ErrMalformedResponse = errors.New("malformed api response")

// envelope mirrors the server's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Client is an HTTP client for the session API. It implements autosave.Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API rooted at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ autosave.Backend = (*Client)(nil)

// Me resolves the user behind token.
func (c *Client) Me(ctx context.Context, token *oauth2.Token) (autosave.Identity, error) {
	var ident autosave.Identity
	if err := c.do(ctx, http.MethodGet, pathMe, token, nil, &ident); err != nil {
		return autosave.Identity{}, asSaveError(err, autosave.ErrIdentityLookupFailed)
	}
	if ident.ID == "" {
		return autosave.Identity{}, &autosave.SaveError{Kind: autosave.ErrIdentityLookupFailed, Err: ErrMalformedResponse}
	}
	return ident, nil
}

// SaveDraft creates or updates a draft session.
func (c *Client) SaveDraft(ctx context.Context, token *oauth2.Token, req autosave.SaveRequest) (autosave.SaveResult, error) {
	var res autosave.SaveResult
	if err := c.do(ctx, http.MethodPost, pathSaveDraft, token, req, &res); err != nil {
		c.logger.Warn("save_draft_request_failed",
			zap.Bool("has_id", req.ID != nil),
			zap.Error(err),
		)
		return autosave.SaveResult{}, asSaveError(err, autosave.ErrPersistenceRequestFailed)
	}
	if res.ID == "" {
		return autosave.SaveResult{}, &autosave.SaveError{Kind: autosave.ErrPersistenceRequestFailed, Err: ErrMalformedResponse}
	}
	return res, nil
}

// PublishRequest publishes a session, optionally patching fields on the way.
type PublishRequest struct {
	ID          string    `json:"id"`
	Title       *string   `json:"title,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	JSONFileURL *string   `json:"json_file_url,omitempty"`
}

// Publish marks one of the caller's sessions as published.
func (c *Client) Publish(ctx context.Context, token *oauth2.Token, req PublishRequest) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, http.MethodPost, pathPublish, token, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListMine returns the caller's drafts and published sessions.
func (c *Client) ListMine(ctx context.Context, token *oauth2.Token) ([]*models.Session, error) {
	var out []*models.Session
	if err := c.do(ctx, http.MethodGet, pathMySessions, token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one of the caller's sessions.
func (c *Client) Get(ctx context.Context, token *oauth2.Token, id string) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, http.MethodGet, pathMySessions+"/"+id, token, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListPublished returns all published sessions. No credential is needed.
func (c *Client) ListPublished(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session
	if err := c.do(ctx, http.MethodGet, pathSessions, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do sends one request and decodes the envelope's data into out. Network
// failures come back as transport errors, non-2xx answers as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, token *oauth2.Token, body any, out any) (err error) {
	ctx, span := telemetry.Tracer("apiclient").Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request failed")
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		token.SetAuthHeader(req)
	}
	telemetry.Inject(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &autosave.SaveError{Kind: autosave.ErrTransportFailed, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &autosave.SaveError{Kind: autosave.ErrTransportFailed, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			se.ErrorType = env.Error
			se.Message = env.Message
		}
		c.logger.Debug("api_request_rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
		)
		return se
	}

	if decodeErr != nil || !env.Success || len(env.Data) == 0 {
		return fmt.Errorf("%w: %s %s", ErrMalformedResponse, method, path)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return nil
}

// asSaveError attaches an autosave kind to err so the reconciler can report it.
func asSaveError(err error, kind error) error {
	var se *autosave.SaveError
	if errors.As(err, &se) {
		return se
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &autosave.SaveError{Kind: kind, StatusCode: statusErr.StatusCode, Err: statusErr}
	}
	return &autosave.SaveError{Kind: kind, Err: err}
}
