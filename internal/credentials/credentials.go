// Package credentials stores the bearer token the CLI and the autosave loop act with.
package credentials

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNoCredential is returned when no token has been stored.
	ErrNoCredential = errors.New("no credential stored")
	// ErrCredentialExpired is returned when the stored token is past its expiry.
	ErrCredentialExpired = errors.New("stored credential has expired")
)

// Store is a writable token source.
type Store interface {
	oauth2.TokenSource
	Save(token *oauth2.Token) error
	Clear() error
}

// storedToken is the persisted form of an oauth2.Token
type storedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

func fromToken(t *oauth2.Token) storedToken {
	return storedToken{AccessToken: t.AccessToken, TokenType: t.TokenType, Expiry: t.Expiry}
}

// token converts back and checks expiry against now.
func (s storedToken) token(now time.Time) (*oauth2.Token, error) {
	if s.AccessToken == "" {
		return nil, ErrNoCredential
	}
	if !s.Expiry.IsZero() && !now.Before(s.Expiry) {
		return nil, ErrCredentialExpired
	}
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{AccessToken: s.AccessToken, TokenType: tokenType, Expiry: s.Expiry}, nil
}
