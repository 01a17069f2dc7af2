// Package gateway implements the broker's public HTTP surface: the login
// flow, the health check, and the authenticated reverse proxy into a
// user's workshop container.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/codespacesh/workshop-hub/internal/auth"
	"github.com/codespacesh/workshop-hub/internal/config"
	"github.com/codespacesh/workshop-hub/internal/identity"
	"github.com/codespacesh/workshop-hub/internal/orchestrator"
)

// Server wires the gateway's routes and middleware chain (spec.md §4.2).
type Server struct {
	issuer        *auth.Issuer
	orchestrator  *orchestrator.Orchestrator
	profiles      *config.ProfileCatalog
	workshopImage string
	workshopPort  int32
	sidecarPort   string
}

// New builds the gateway's http.Handler.
func New(issuer *auth.Issuer, o *orchestrator.Orchestrator, profiles *config.ProfileCatalog, workshopImage string, workshopPort int32) http.Handler {
	s := &Server{
		issuer:        issuer,
		orchestrator:  o,
		profiles:      profiles,
		workshopImage: workshopImage,
		workshopPort:  workshopPort,
		sidecarPort:   defaultSidecarPort,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleLanding)
	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.HandleFunc("POST /login", s.handleLoginSubmit)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /workshop/", auth.RequireAuth(http.HandlerFunc(s.handleWorkshopProxy)))

	return withRequestID(issuer.Resolve(mux))
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withTraceID(r.Context(), id)))
	})
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(landingPage))
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(loginPage))
}

type loginRequest struct {
	Username string `json:"username"`
	Profile  string `json:"profile"`
}

type loginResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "invalid request body"})
		return
	}
	if !identity.ValidUsername(req.Username) {
		writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "invalid username"})
		return
	}

	id := identity.Identity{
		UserID:   identity.DeriveUserID(req.Username),
		Username: req.Username,
		Profile:  req.Profile,
	}

	token, expiresAt, err := s.issuer.Issue(id)
	if err != nil {
		slog.Error("gateway: issuing token failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, loginResponse{Success: false, Message: "internal error"})
		return
	}

	auth.SetCookie(w, token, expiresAt.Unix())
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Message: "logged in", Redirect: "/workshop/"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

const landingPage = `<!DOCTYPE html>
<html><head><title>workshop-hub</title></head>
<body><h1>workshop-hub</h1><p><a href="/login">Start a workshop</a></p></body></html>`

const loginPage = `<!DOCTYPE html>
<html><head><title>Log in</title></head>
<body>
<h1>Log in</h1>
<form id="login-form">
  <input name="username" placeholder="username" required>
  <button type="submit">Start</button>
</form>
<script>
document.getElementById('login-form').addEventListener('submit', async (e) => {
  e.preventDefault();
  const username = e.target.username.value;
  const resp = await fetch('/login', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({username}),
  });
  const data = await resp.json();
  if (data.success) { window.location = data.redirect || '/workshop/'; }
});
</script>
</body></html>`
