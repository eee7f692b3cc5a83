// ABOUTME: Response helpers applying defensive headers to every reply
// ABOUTME: Detects TLS termination by a fronting proxy or tunnel

package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
)

// isHTTPS reports whether the inbound request was TLS-terminated, either
// directly or by a reverse proxy / tunnel in front of the gateway.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	// Cloudflare sends the original scheme in CF-Visitor.
	return strings.Contains(strings.ToLower(r.Header.Get("CF-Visitor")), "https")
}

// setDefensiveHeaders disables caching and guards against content-type
// sniffing, framing, and referrer leakage on every response.
func setDefensiveHeaders(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
	if isHTTPS(r) {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

// writeJSON writes a JSON response with defensive headers.
func (g *Gateway) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		g.logger.Error("encoding response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	data = append(data, '\n')

	setDefensiveHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// writeHTML writes an HTML response with defensive headers plus a content
// security policy.
func writeHTML(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	setDefensiveHeaders(w, r)
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'")
	w.WriteHeader(status)
	w.Write(body)
}
