package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aadithya-v/bifrost"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const cookieName = "bifrost_session"

var errNoSession = errors.New("no live session")

// sessionPayload is what the example keeps in each session.
type sessionPayload struct {
	User      string     `json:"user"`
	Client    clientInfo `json:"client"`
	Visits    int        `json:"visits"`
	CreatedAt time.Time  `json:"created_at"`
}

// server exposes a SessionStore as a small cookie-based login flow.
type server struct {
	sessions     *bifrost.SessionStore
	geo          *countryLookup
	logger       *zap.Logger
	ttl          time.Duration
	secureCookie bool
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.loginHandler)
	mux.HandleFunc("/whoami", s.whoamiHandler)
	mux.HandleFunc("/visit", s.visitHandler)
	mux.HandleFunc("/logout", s.logoutHandler)
	return mux
}

func (s *server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "user required", http.StatusBadRequest)
		return
	}

	client := describeClient(r)
	client.Country = s.geo.country(client.IP)

	payload := sessionPayload{
		User:      user,
		Client:    client,
		CreatedAt: time.Now().UTC(),
	}

	sessionID := uuid.NewString()
	if err := s.store(r.Context(), sessionID, &payload); err != nil {
		s.fail(w, "failed to save session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, payload)
}

func (s *server) whoamiHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID, payload, err := s.current(r)
	if errors.Is(err, errNoSession) {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	if err != nil {
		s.fail(w, "failed to load session", err)
		return
	}

	// Extending the expiry does not need to hold up the response.
	s.sessions.TouchAsync(context.WithoutCancel(r.Context()), sessionID, func(err error) {
		if err != nil {
			s.logger.Warn("failed to touch session", zap.Error(err))
		}
	})
	writeJSON(w, http.StatusOK, payload)
}

func (s *server) visitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID, payload, err := s.current(r)
	if errors.Is(err, errNoSession) {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	if err != nil {
		s.fail(w, "failed to load session", err)
		return
	}

	// Load and Save are separate calls, so concurrent visits can lose an increment.
	payload.Visits++
	if err := s.store(r.Context(), sessionID, payload); err != nil {
		s.fail(w, "failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if cookie, err := r.Cookie(cookieName); err == nil {
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil {
			s.fail(w, "failed to delete session", err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out",
	})
}

// current returns the session named by the request cookie.
// It fails with errNoSession if there is no cookie or no live session.
func (s *server) current(r *http.Request) (string, *sessionPayload, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", nil, errNoSession
	}

	data, err := s.sessions.Load(r.Context(), cookie.Value)
	if err != nil {
		return "", nil, err
	}
	if data == nil {
		return "", nil, errNoSession
	}

	var payload sessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", nil, err
	}
	return cookie.Value, &payload, nil
}

func (s *server) store(ctx context.Context, sessionID string, payload *sessionPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.sessions.Save(ctx, sessionID, data)
}

func (s *server) fail(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
