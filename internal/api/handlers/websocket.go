package handlers

import (
	"net/http"

	"github.com/dom/shared-calendar/internal/api/middleware"
	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub      *websocket.Hub
	users    middleware.UserResolver
	sessions *middleware.SessionStore
}

func NewWebSocketHandler(hub *websocket.Hub, users middleware.UserResolver, sessions *middleware.SessionStore) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		users:    users,
		sessions: sessions,
	}
}

// Handle upgrades the request once the caller is identified by bearer
// header, ?token= or session cookie.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.Authenticate(r, h.users, h.sessions, r.URL.Query().Get("token"))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Kind: domain.Kind("unauthorized")})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
