package server

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

type ownerKey struct{}

// WithOwner returns a context carrying the resolved owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom returns the owner id set by [Identity], or "" outside an authenticated request.
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack hands the connection to websocket upgrades.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Logging logs one line per request.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start).Round(time.Millisecond),
			)
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("handler panic", "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityTTL bounds how long a resolved token is trusted without asking the provider again.
const IdentityTTL = 5 * time.Minute

type identity struct {
	owner   string
	expires time.Time
}

// IdentityCache remembers which owner a bearer token resolved to.
//
// Tokens are keyed by their sha256 so raw tokens never sit in memory longer than a request.
type IdentityCache struct {
	provider services.IdentityProvider
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]identity
}

// NewIdentityCache creates a cache in front of provider.
func NewIdentityCache(provider services.IdentityProvider) *IdentityCache {
	return &IdentityCache{
		provider: provider,
		ttl:      IdentityTTL,
		now:      time.Now,
		entries:  make(map[string]identity),
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the owner id for token.
// Fails with [shared.ErrUnauthorized] when the provider does not accept the token.
func (c *IdentityCache) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", shared.ErrUnauthorized)
	}
	key := tokenKey(token)
	now := c.now()

	c.mu.Lock()
	if id, ok := c.entries[key]; ok {
		if now.Before(id.expires) {
			c.mu.Unlock()
			return id.owner, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	info, err := c.provider.UserInfo(ctx, token)
	if err != nil {
		return "", err
	}
	if info == nil || info.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", shared.ErrUnauthorized)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = identity{owner: info.Subject, expires: now.Add(c.ttl)}
	c.sweep(now)
	return info.Subject, nil
}

// sweep drops expired entries. Callers hold mu.
func (c *IdentityCache) sweep(now time.Time) {
	for k, id := range c.entries {
		if !now.Before(id.expires) {
			delete(c.entries, k)
		}
	}
}

// Identity rejects requests without a resolvable bearer token and stores the owner in the context.
//
// Provider outages answer 503; anything else the provider reports is treated as unauthorized.
func Identity(cache *IdentityCache, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := cache.Resolve(r.Context(), BearerToken(r))
			if err != nil {
				logger.Debug("identity rejected", "path", r.URL.Path, "error", err)
				if isUnavailable(err) {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}
