package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const keyPrefix = "wellness-sessions:credentials:"

// RedisStore keeps the token in Redis under a per-profile key. Tokens with an
// expiry are stored with a matching TTL.
type RedisStore struct {
	client  redis.Cmdable
	key     string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisStore returns a store for profile using client
func NewRedisStore(client redis.Cmdable, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{
		client:  client,
		key:     keyPrefix + profile,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Key returns the redis key this store uses
func (s *RedisStore) Key() string {
	return s.key
}

// Token implements oauth2.TokenSource
func (s *RedisStore) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to read credential from redis: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse stored credential: %w", err)
	}
	return st.token(s.now())
}

// Save stores token
func (s *RedisStore) Save(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return ErrNoCredential
	}
	data, err := json.Marshal(fromToken(token))
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	var ttl time.Duration
	if !token.Expiry.IsZero() {
		ttl = token.Expiry.Sub(s.now())
		if ttl <= 0 {
			return ErrCredentialExpired
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write credential to redis: %w", err)
	}
	return nil
}

// Clear deletes the stored token
func (s *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete credential from redis: %w", err)
	}
	return nil
}
