package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
)

// UserResolver turns request credentials into a user id.
type UserResolver interface {
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)
	ValidateToken(token string) (uuid.UUID, error)
}

// Identify attaches the caller's user id to the context when the request
// carries a valid bearer token or session cookie. Anonymous requests pass
// through unchanged.
func Identify(users UserResolver, sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := Authenticate(r, users, sessions, ""); ok {
				r = r.WithContext(context.WithValue(r.Context(), UserIDKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests that Identify could not attach a user to.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserID(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "authentication required",
				"kind":  "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticate resolves the caller from, in order, the Authorization
// header, the fallback token (e.g. a query parameter) and the session
// cookie.
func Authenticate(r *http.Request, users UserResolver, sessions *SessionStore, fallbackToken string) (uuid.UUID, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			log.Debug().Msg("invalid authorization header format")
			return uuid.Nil, false
		}
		return validateBearer(users, parts[1])
	}

	if fallbackToken != "" {
		return validateBearer(users, fallbackToken)
	}

	if sessions == nil {
		return uuid.Nil, false
	}
	token := sessions.Token(r)
	if token == "" {
		return uuid.Nil, false
	}
	user, err := users.GetBySessionToken(r.Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("session token did not resolve to a user")
		return uuid.Nil, false
	}
	return user.ID, true
}

func validateBearer(users UserResolver, token string) (uuid.UUID, bool) {
	userID, err := users.ValidateToken(token)
	if err != nil {
		log.Debug().Err(err).Msg("token validation failed")
		return uuid.Nil, false
	}
	return userID, true
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}
