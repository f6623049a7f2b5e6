package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxCacheTTL bounds how long a session may be served from Redis without
// consulting Postgres.
const maxCacheTTL = 5 * time.Minute

// SessionCache keeps recently resolved sessions in Redis.
type SessionCache struct {
	client *redis.Client
	prefix string
}

// NewSessionCache constructs a SessionCache. A nil client disables caching.
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client, prefix: "auth:session:"}
}

// redisKey hashes the token so raw credentials never appear in the keyspace.
func (c *SessionCache) redisKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns a cached session. The boolean is false on a miss.
func (c *SessionCache) Get(ctx context.Context, token string) (Session, bool, error) {
	if c == nil || c.client == nil {
		return Session{}, false, nil
	}
	payload, err := c.client.Get(ctx, c.redisKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// Put caches s for min(5m, remaining lifetime).
func (c *SessionCache) Put(ctx context.Context, s Session, now time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	ttl := s.Expires.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if ttl > maxCacheTTL {
		ttl = maxCacheTTL
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.redisKey(s.SessionToken), data, ttl).Err()
}

// Delete evicts a token.
func (c *SessionCache) Delete(ctx context.Context, token string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// CookieWriter writes and clears the session cookie.
type CookieWriter struct {
	Name   string
	Secure bool
}

// Set writes the session cookie.
func (cw CookieWriter) Set(w http.ResponseWriter, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     cw.Name,
		Value:    s.SessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   cw.Secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  s.Expires,
	})
}

// Clear expires the session cookie.
func (cw CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cw.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cw.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
