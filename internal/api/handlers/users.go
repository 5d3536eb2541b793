package handlers

import (
	"net/http"

	"github.com/dom/shared-calendar/internal/api/middleware"
	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/service"
)

type UserHandler struct {
	userService *service.UserService
	sessions    *middleware.SessionStore
}

func NewUserHandler(userService *service.UserService, sessions *middleware.SessionStore) *UserHandler {
	return &UserHandler{
		userService: userService,
		sessions:    sessions,
	}
}

type UsernameRequest struct {
	Username string `json:"username" validate:"required"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

type UsernameAvailability struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// CreateOrResume renames the user behind the session cookie, or registers a
// new one when there is no session yet.
func (h *UserHandler) CreateOrResume(w http.ResponseWriter, r *http.Request) {
	var req UsernameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.userService.CreateOrResume(r.Context(), h.sessions.Token(r), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusCreated, user)
}

func (h *UserHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	available, message, err := h.userService.CheckUsername(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UsernameAvailability{Available: available, Message: message})
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req UsernameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusCreated, user)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req UsernameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.userService.Login(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusOK, user)
}

func (h *UserHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(w, r); err != nil {
		writeError(w, r, domain.Internal("clear session", err))
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

func (h *UserHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, user *domain.User) {
	if err := h.sessions.Save(w, r, user.SessionToken); err != nil {
		writeError(w, r, domain.Internal("save session", err))
		return
	}

	token, err := h.userService.IssueToken(user)
	if err != nil {
		writeError(w, r, domain.Internal("issue token", err))
		return
	}
	writeJSON(w, status, AuthResponse{User: user, AccessToken: token})
}
