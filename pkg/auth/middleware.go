package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethpandaops/specsync/pkg/store"
)

// Context keys for request credentials.
type contextKey string

const (
	tokenContextKey   contextKey = "token"
	projectContextKey contextKey = "project"
)

// TokenFromContext returns the bearer token attached by TokenMiddleware.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)

	return token
}

// ContextWithToken adds a bearer token to the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// ProjectFromContext retrieves the authenticated project from the context.
func ProjectFromContext(ctx context.Context) *store.Project {
	project, ok := ctx.Value(projectContextKey).(*store.Project)
	if !ok {
		return nil
	}

	return project
}

// ContextWithProject adds a project to the context.
func ContextWithProject(ctx context.Context, project *store.Project) context.Context {
	return context.WithValue(ctx, projectContextKey, project)
}

// TokenMiddleware rejects requests without a bearer token.
func TokenMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				unauthorized(w, "Missing bearer token")

				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithToken(r.Context(), token)))
		})
	}
}

// ProjectMiddleware authenticates the project named by projectID against the
// request's bearer token and stores it in the context.
func ProjectMiddleware(authSvc Service, projectID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			project, err := authSvc.AuthenticateProject(r.Context(), projectID(r), ExtractToken(r))
			if err != nil {
				switch {
				case errors.Is(err, ErrProjectNotFound):
					http.Error(w, "Project not found", http.StatusNotFound)
				case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken),
					errors.Is(err, ErrNoTokenConfigured):
					unauthorized(w, err.Error())
				default:
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}

				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithProject(r.Context(), project)))
		})
	}
}

// ExtractToken extracts the bearer token from the request.
func ExtractToken(r *http.Request) string {
	// Check Authorization header.
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Support both "Bearer <token>" and "<token>" formats.
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}

		return authHeader
	}

	// Check query parameter (for WebSocket connections).
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, msg, http.StatusUnauthorized)
}
