package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type contextKey string

const usernameContextKey contextKey = "username"

// NormalizeUsername trims and NFC-normalises a user name so the same reviewer
// maps to one annotation key regardless of how the client encoded the name.
func NormalizeUsername(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Username is middleware that takes the reviewer name from HTTP basic auth.
// The password is not checked. Requests without a usable name get defaultUser.
func Username(defaultUser string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := defaultUser
			if name, _, ok := r.BasicAuth(); ok {
				if name = NormalizeUsername(name); name != "" {
					username = name
				}
			}

			ctx := context.WithValue(r.Context(), usernameContextKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUsernameFromContext retrieves the reviewer name from the request context
func GetUsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameContextKey).(string)
	return username
}

// SetUsernameInContext adds a reviewer name to the context.
// This is primarily for testing - use Username middleware in production.
func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}
