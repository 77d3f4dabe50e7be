// Package auth issues and verifies the bearer tokens used by the session API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// MinSecretLength is the shortest HMAC secret accepted
const MinSecretLength = 32

// DefaultTokenTTL is used by Issue when no ttl is given
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrWeakSecret is returned for secrets shorter than MinSecretLength
	ErrWeakSecret = errors.New("signing secret is too short")
	// ErrMissingSubject is returned when a token carries no subject
	ErrMissingSubject = errors.New("token missing subject claim")
)

// Keyring signs and verifies HS256 tokens for a single issuer.
type Keyring struct {
	key    jwk.Key
	issuer string
	now    func() time.Time
}

// NewKeyring builds a keyring from a shared secret
func NewKeyring(secret, issuer string) (*Keyring, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	key, err := jwk.FromRaw([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to build signing key: %w", err)
	}
	return &Keyring{key: key, issuer: issuer, now: time.Now}, nil
}

// Issuer returns the issuer claim the keyring signs and expects
func (k *Keyring) Issuer() string {
	return k.issuer
}

// Issue mints a token for subject. A zero ttl means DefaultTokenTTL.
func (k *Keyring) Issue(subject, email, name string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := k.now().UTC().Truncate(time.Second)
	expiry := now.Add(ttl)
	builder := jwt.NewBuilder().
		Subject(subject).
		Issuer(k.issuer).
		IssuedAt(now).
		Expiration(expiry)
	if email != "" {
		builder = builder.Claim("email", email)
	}
	if name != "" {
		builder = builder.Claim("name", name)
	}

	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, k.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), expiry, nil
}

// Verify checks signature, issuer and expiry and extracts the claims
func (k *Keyring) Verify(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, k.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(k.issuer),
		jwt.WithClock(jwt.ClockFunc(k.now)),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	if token.Subject() == "" {
		return nil, ErrMissingSubject
	}

	claims := &models.JWTClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration().Unix(),
		Iat: token.IssuedAt().Unix(),
	}
	if email, ok := token.Get("email"); ok {
		if emailStr, ok := email.(string); ok {
			claims.Email = emailStr
		}
	}
	if name, ok := token.Get("name"); ok {
		if nameStr, ok := name.(string); ok {
			claims.Name = nameStr
		}
	}
	return claims, nil
}
