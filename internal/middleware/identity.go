package middleware

import (
	"context"
	"net/http"
	"strings"
)

// UserEmailHeader carries the account email set by the upstream identity provider.
const UserEmailHeader = "X-User-Email"

type emailKey struct{}

// Identity stores the caller's email in the request context. Requests without
// the header are treated as anonymous.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.Header.Get(UserEmailHeader))
		next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
	})
}

// WithEmail returns a copy of ctx carrying email.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey{}, email)
}

// EmailFromContext returns the caller email, or "" when anonymous.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailKey{}).(string)
	return email
}
