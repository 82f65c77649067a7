// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const identityKey ContextKey = "identity"

// Claims represents JWT claims. The tenant namespaces conversations so
// two tenants can reuse a thread id.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scope"`
}

// Identity is the caller resolved from the bearer token.
type Identity struct {
	TenantID string
	UserID   string
	Scopes   []string
}

var (
	errMissingAuth = errors.New("missing authorization header")
	errBadAuth     = errors.New("invalid authorization header format")
)

// Auth creates JWT authentication middleware. Only HMAC-signed tokens are
// accepted.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc)
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			// Logging installs an empty identity up front so it can report
			// the caller once the chain returns.
			ctx := r.Context()
			id := identityFrom(ctx)
			if id == nil {
				id = &Identity{}
				ctx = context.WithValue(ctx, identityKey, id)
			}
			*id = Identity{
				TenantID: claims.TenantID,
				UserID:   claims.Subject,
				Scopes:   claims.Scopes,
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingAuth
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errBadAuth
	}
	return token, nil
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func identityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	if id := identityFrom(ctx); id != nil {
		return id.UserID
	}
	return ""
}

// GetTenantID gets tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if id := identityFrom(ctx); id != nil {
		return id.TenantID
	}
	return ""
}

// HasScope checks if the caller's token carries scope.
func HasScope(ctx context.Context, scope string) bool {
	id := identityFrom(ctx)
	return id != nil && slices.Contains(id.Scopes, scope)
}

// RequireScope rejects callers whose token lacks scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				writeAuthError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
