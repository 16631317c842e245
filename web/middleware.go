package web

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/db"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Body limits per router.
const (
	ModifyRequestMaxBodySize = 1 << 20  // 1 MB
	OAuthCallbackMaxBodySize = 16 << 10 // 16 KB
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	principalKey
	oauthTokenKey
)

// RequestSizeLimitMiddleware caps request bodies at limit bytes. Bodies
// without a declared length are cut by MaxBytesReader and surface through
// handleMaxBytesError while decoding.
func RequestSizeLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				tooLarge(w, r, limit)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware tags every request with an id, echoed in X-Request-Id
// and attached to the access log line.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		slog.Debug("Handled request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed", time.Since(start))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// UserLookup resolves the user a session token was issued to.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (db.User, error)
}

// AuthMiddleware accepts "Authorization: JWT <token>", "Bearer <token>" or a
// token query parameter for event streams. The token's user must still exist.
func AuthMiddleware(issuer *TokenIssuer, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, "UNAUTHORIZED", "Authentication credentials were not provided.", nil, http.StatusUnauthorized)
				return
			}
			claims, err := issuer.Parse(raw)
			if err != nil {
				slog.Warn("Rejected session token", "request_id", requestID(r.Context()), "error", err)
				writeError(w, "UNAUTHORIZED", "Invalid or expired session token.", nil, http.StatusUnauthorized)
				return
			}
			principal, err := claims.Principal()
			if err != nil {
				writeError(w, "UNAUTHORIZED", "Invalid session token.", nil, http.StatusUnauthorized)
				return
			}
			if _, err := users.GetUser(r.Context(), principal.ID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					slog.Warn("Session token for unknown user", "request_id", requestID(r.Context()), "user_id", principal.ID)
					writeError(w, "UNAUTHORIZED", "User not found.", nil, http.StatusUnauthorized)
					return
				}
				writeServiceError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			ctx = context.WithValue(ctx, oauthTokenKey, claims.OAuthToken())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if found && (strings.EqualFold(scheme, "JWT") || strings.EqualFold(scheme, "Bearer")) {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

func principalFrom(ctx context.Context) collect.Principal {
	p, _ := ctx.Value(principalKey).(collect.Principal)
	return p
}

func oauthTokenFrom(ctx context.Context) *oauth2.Token {
	t, _ := ctx.Value(oauthTokenKey).(*oauth2.Token)
	return t
}

// clientLimiter keeps one token bucket per authenticated user.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{limiters: make(map[int64]*rate.Limiter), limit: rate.Limit(perSecond), burst: burst}
}

func (c *clientLimiter) get(userID int64) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[userID]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[userID] = l
	}
	return l
}

// RateLimitMiddleware must run after AuthMiddleware.
func (c *clientLimiter) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := principalFrom(r.Context())
		if !c.get(principal.ID).Allow() {
			slog.Warn("Rate limit exceeded", "user_id", principal.ID, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, "RATE_LIMITED", "Too many requests", nil, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeServiceError maps engine errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if collect.IsTokenExpired(err) {
		w.Header().Set("X-Reason", "Token Expired")
		writeJSONResponse(w, map[string]string{"detail": "token_expired"}, http.StatusProxyAuthRequired)
		return
	}
	var providerErr *collect.ProviderError
	if errors.As(err, &providerErr) {
		writeJSONResponse(w, map[string]interface{}{"error": providerErr}, http.StatusBadRequest)
		return
	}
	if errors.Is(err, context.Canceled) {
		slog.Info("Request cancelled", "request_id", requestID(r.Context()), "path", r.URL.Path)
		return
	}
	slog.Error("Request failed",
		"request_id", requestID(r.Context()),
		"path", r.URL.Path,
		"error", err)
	writeError(w, "INTERNAL", "Internal server error", nil, http.StatusInternalServerError)
}
