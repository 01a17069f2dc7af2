package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/codespacesh/workshop-hub/internal/identity"
)

// CookieName is the hub's session cookie, set on path "/" of the gateway
// origin.
const CookieName = "hub_session"

type contextKey struct{}

// WithIdentity attaches an identity.Identity to the request context.
func WithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the identity attached by Resolve, if any.
func FromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(identity.Identity)
	return id, ok
}

// Resolve is the passive cookie/bearer/query resolver middleware (spec.md
// §4.2 step 1). It tries the cookie first, then the Authorization: Bearer
// header, then the ?token= query parameter, and attaches the identity to
// the request context when a token validates. A cookie that fails falls
// through to the bearer header; a bearer header, once present, is the last
// token tried, so ?token= is only consulted when there is none. An invalid or
// expired token never rejects the request — it simply leaves the identity
// absent, except that a cookie which fails to validate is cleared so the
// browser stops presenting it.
func (i *Issuer) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
			if id, verr := i.Verify(cookie.Value); verr == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
				next.ServeHTTP(w, r)
				return
			}
			clearCookie(w)
		}

		if token := bearerToken(r); token != "" {
			if id, verr := i.Verify(token); verr == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
			return
		}

		if token := r.URL.Query().Get("token"); token != "" {
			if id, verr := i.Verify(token); verr == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// RequireAuth is the active gate (spec.md §4.2 step 2) applied only to
// protected routes. A request with no resolved identity is redirected to
// /login for browser flows, or rejected with 401 for programmatic callers —
// distinguished by whether the request already carried a bearer token or an
// Accept: application/json header. A bare ?token= query parameter does not
// count: it's the same URL a browser follows from a link, so it still gets
// the redirect, even when the token itself turns out to be invalid.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		if isProgrammatic(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	})
}

func isProgrammatic(r *http.Request) bool {
	if bearerToken(r) != "" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// SetCookie sets the session cookie on path "/", HTTP-only and SameSite=Lax.
func SetCookie(w http.ResponseWriter, token string, expiresAt int64) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(expiresAt, 0).UTC(),
	})
}

// ClearCookie removes the session cookie (logout, or an invalid cookie
// observed during passive resolution).
func ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
