// ABOUTME: Route handlers for the login flow, console, and request API
// ABOUTME: Maps ledger errors onto protocol status codes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/greenlight/internal/ledger"
)

// decisionBody is the request body for POST /api/requests/{id}/decision.
type decisionBody struct {
	Decision string `json:"decision"`
	Response string `json:"response"`
}

// handleHealth is the unauthenticated liveness probe.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
}

// handleLoginPage renders the login form, with an error banner when the
// previous attempt was redirected back with an error marker.
func (g *Gateway) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	g.renderLoginPage(w, r, r.URL.Query().Get("error") != "")
}

// handleLogin verifies the operator password and issues a session.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}
	password := r.FormValue("password")

	record, err := g.creds.Load()
	if err != nil || !record.VerifyPassword(password) {
		g.logger.Warn("login rejected")
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}

	token, err := g.sessions.Issue()
	if err != nil {
		g.logger.Error("issuing session", "error", err)
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}

	g.setSessionCookie(w, r, token)
	g.logger.Info("operator login successful")
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleConsole renders the approval console, redirecting unauthenticated
// visitors to the login form.
func (g *Gateway) handleConsole(w http.ResponseWriter, r *http.Request) {
	if !g.authenticated(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	g.renderConsole(w, r)
}

// handleListRequests returns the full ledger.
func (g *Gateway) handleListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := g.ledger.List()
	if err != nil {
		g.logger.Error("listing requests", "error", err)
		g.writeJSON(w, r, http.StatusInternalServerError, map[string]any{"error": "storage failure"})
		return
	}
	g.writeJSON(w, r, http.StatusOK, map[string]any{"requests": requests})
}

// handleDecision records a decision on a pending request.
func (g *Gateway) handleDecision(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		g.writeJSON(w, r, http.StatusBadRequest, map[string]any{"error": "invalid request id"})
		return
	}

	var body decisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.writeJSON(w, r, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	request, err := g.ledger.Decide(id, ledger.Status(body.Decision), body.Response)
	switch {
	case errors.Is(err, ledger.ErrInvalidDecision):
		g.writeJSON(w, r, http.StatusBadRequest, map[string]any{"error": "decision must be approved or denied"})
	case errors.Is(err, ledger.ErrNotFound):
		g.writeJSON(w, r, http.StatusNotFound, map[string]any{"error": "request not found"})
	case errors.Is(err, ledger.ErrAlreadyDecided):
		g.writeJSON(w, r, http.StatusConflict, map[string]any{"error": "request already decided"})
	case err != nil:
		g.logger.Error("deciding request", "id", id, "error", err)
		g.writeJSON(w, r, http.StatusInternalServerError, map[string]any{"error": "storage failure"})
	default:
		g.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "request": request})
	}
}
