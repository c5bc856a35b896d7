package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/http/respond"
	"github.com/hongminglow/cdms-be/internal/storage"
)

// Client-facing reasons. The precise cause is only logged so responses cannot
// be used to tell unknown accounts from bad tokens.
const (
	MsgMissingToken       = "missing bearer token"
	MsgInvalidCredentials = "invalid or expired credentials"
	MsgAuthUnavailable    = "authentication temporarily unavailable"
	MsgForbidden          = "insufficient permissions"
)

// Resolver maps a bearer credential onto a caller.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (auth.Resolution, error)
}

// BearerToken extracts the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth resolves the caller and stores it on the request context.
func RequireAuth(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := resolver.Resolve(r.Context(), BearerToken(r))
			if err != nil {
				WriteAuthError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithResolution(r.Context(), res)))
		})
	}
}

// RequireRole admits callers already resolved by RequireAuth whose role is one
// of roles and answers 403 otherwise.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok || !slices.Contains(roles, user.Role) {
				logger.Info("role check failed", "path", r.URL.Path, "user_id", user.ID, "role", user.Role)
				respond.Error(w, http.StatusForbidden, MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteAuthError maps a resolver error onto a uniform response.
func WriteAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		logger.Error("credential lookup failed", "path", r.URL.Path, "error", err)
		respond.Error(w, http.StatusServiceUnavailable, MsgAuthUnavailable)
	case errors.Is(err, auth.ErrMissingCredential):
		w.Header().Set("WWW-Authenticate", "Bearer")
		respond.Error(w, http.StatusUnauthorized, MsgMissingToken)
	default:
		logger.Info("request rejected", "path", r.URL.Path, "reason", err)
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		respond.Error(w, http.StatusUnauthorized, MsgInvalidCredentials)
	}
}
