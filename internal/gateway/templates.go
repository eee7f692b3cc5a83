// ABOUTME: Template rendering for the login form and approval console
// ABOUTME: Loads templates from the embedded filesystem

package gateway

import (
	"bytes"
	"html/template"
	"net/http"
)

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type loginData struct {
	Error bool
}

// renderLoginPage writes the login form.
func (g *Gateway) renderLoginPage(w http.ResponseWriter, r *http.Request, loginError bool) {
	g.renderTemplate(w, r, "login.html", loginData{Error: loginError})
}

// renderConsole writes the approval console shell; the queue itself is
// fetched by the page from /api/requests.
func (g *Gateway) renderConsole(w http.ResponseWriter, r *http.Request) {
	g.renderTemplate(w, r, "console.html", nil)
}

func (g *Gateway) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		g.logger.Error("rendering template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, r, http.StatusOK, buf.Bytes())
}
