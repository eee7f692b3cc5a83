// ABOUTME: Authentication resolution for privileged gateway routes
// ABOUTME: Checks bearer access keys before operator session cookies

package gateway

import (
	"net/http"
	"strings"
)

// authenticated reports whether the request carries a valid credential.
// An Authorization bearer token is checked against the access key first
// (the automated requester); absent that, the session cookie is checked
// (the human operator). Expired and unknown tokens fail identically.
func (g *Gateway) authenticated(r *http.Request) bool {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return false
		}
		record, err := g.creds.Load()
		if err != nil {
			g.logger.Warn("bearer auth without credential record", "error", err)
			return false
		}
		return record.VerifyAccessKey(token)
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	return g.sessions.IsValid(cookie.Value)
}

// requireAuth wraps a handler so that requests with neither valid
// credential get a 401 with a challenge header.
func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.authenticated(r) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			g.writeJSON(w, r, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// setSessionCookie binds the issued session token to the browser. The
// cookie is HTTP-only and strictly same-site, and marked Secure when the
// inbound connection is already TLS-terminated.
func (g *Gateway) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteStrictMode,
	})
}
