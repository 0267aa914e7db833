// Package auth implements the HTTP Basic + per-relayer API-key dual
// middleware of §6, plus the API-key cache supplemented from
// original_source/authentication/cache.rs (see SPEC_FULL.md section C):
// an in-memory TTL cache in front of the persistence lookup so every
// authenticated request doesn't round-trip the database.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rrelayer/rrelayer/internal/storage"
)

type cacheEntry struct {
	relayerID uuid.UUID
	expiresAt time.Time
}

// Cache is a TTL'd API-key -> relayer-id lookup in front of storage.
type Cache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	store storage.Store
	byKey map[string]cacheEntry
}

func NewCache(store storage.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl, byKey: make(map[string]cacheEntry)}
}

func (c *Cache) Resolve(ctx context.Context, key string) (uuid.UUID, error) {
	c.mu.RLock()
	entry, ok := c.byKey[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.relayerID, nil
	}
	relayerID, err := c.store.ResolveAPIKey(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}
	c.mu.Lock()
	c.byKey[key] = cacheEntry{relayerID: relayerID, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return relayerID, nil
}

// Invalidate drops a cached entry, called when an API key is revoked.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.byKey, key)
	c.mu.Unlock()
}

// Credentials is the server-wide Basic-auth pair from §6's environment
// variables (RRELAYER_AUTH_USERNAME / RRELAYER_AUTH_PASSWORD).
type Credentials struct {
	Username string
	Password string
}

type contextKey string

const relayerIDContextKey contextKey = "rrelayer.relayer_id"

// RelayerIDFromContext recovers the relayer id an x-api-key request was
// scoped to, if any.
func RelayerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(relayerIDContextKey).(uuid.UUID)
	return id, ok
}

// Middleware enforces HTTP Basic server-wide credentials and, when
// present, resolves an x-api-key header to its owning relayer and attaches
// it to the request context (§6: "Authenticated by HTTP Basic ... and
// optionally per-relayer API key via x-api-key").
func Middleware(creds Credentials, cache *Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !constantTimeEqual(user, creds.Username) || !constantTimeEqual(pass, creds.Password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="rrelayer"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if key := r.Header.Get("x-api-key"); key != "" {
				relayerID, err := cache.Resolve(r.Context(), key)
				if err != nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), relayerIDContextKey, relayerID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
