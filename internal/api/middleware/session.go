package middleware

import (
	"net/http"

	"github.com/dom/shared-calendar/internal/config"
	"github.com/gorilla/sessions"
)

const (
	sessionName     = "shared_calendar_session"
	sessionTokenKey = "session_token"
)

// SessionStore keeps the user's opaque session token in a signed cookie.
type SessionStore struct {
	store *sessions.CookieStore
}

func NewSessionStore(cfg *config.Config) *SessionStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store}
}

// Token returns the session token carried by the request, or "".
func (s *SessionStore) Token(r *http.Request) string {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return ""
	}
	token, _ := session.Values[sessionTokenKey].(string)
	return token
}

func (s *SessionStore) Save(w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[sessionTokenKey] = token
	return session.Save(r, w)
}

func (s *SessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	delete(session.Values, sessionTokenKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
