package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dom/shared-calendar/internal/api/middleware"
	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CalendarHandler struct {
	membershipService *service.MembershipService
	eventService      *service.EventService
}

func NewCalendarHandler(membershipService *service.MembershipService, eventService *service.EventService) *CalendarHandler {
	return &CalendarHandler{
		membershipService: membershipService,
		eventService:      eventService,
	}
}

type CreateCalendarRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type JoinCalendarRequest struct {
	ShareCode string `json:"share_code" validate:"required"`
}

type TransferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id" validate:"required,uuid"`
}

// ListMine returns the caller's calendars. Anonymous callers get an empty
// list.
func (h *CalendarHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, []*domain.UserCalendar{})
		return
	}

	calendars, err := h.membershipService.ListUserCalendars(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendars)
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var req CreateCalendarRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	calendar, err := h.membershipService.CreateCalendar(r.Context(), req.Name, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSummary(w, r, http.StatusCreated, calendar)
}

// Join returns 201 for a new membership and 200 when the caller was
// already a member.
func (h *CalendarHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var req JoinCalendarRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	membership, created, err := h.membershipService.JoinCalendar(r.Context(), req.ShareCode, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeSummary(w, r, status, membership.Calendar)
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSummary(w, r, http.StatusOK, calendar)
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.membershipService.DeleteCalendar(r.Context(), calendar.ID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "calendar deleted"})
}

func (h *CalendarHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.membershipService.LeaveCalendar(r.Context(), calendar.ID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "left calendar"})
}

func (h *CalendarHandler) Members(w http.ResponseWriter, r *http.Request) {
	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	members, err := h.membershipService.ListMembers(r.Context(), calendar.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *CalendarHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, domain.ErrMemberNotFound)
		return
	}

	if err := h.membershipService.RemoveMember(r.Context(), calendar.ID, userID, targetID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "member removed"})
}

func (h *CalendarHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req TransferOwnershipRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	newOwnerID, _ := uuid.Parse(req.NewOwnerID)

	if err := h.membershipService.TransferOwnership(r.Context(), calendar.ID, userID, newOwnerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ownership transferred"})
}

// Events lists a calendar's events, optionally bounded by the start_date
// and end_date query parameters.
func (h *CalendarHandler) Events(w http.ResponseWriter, r *http.Request) {
	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	from, err := optionalTimestamp(r, "start_date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := optionalTimestamp(r, "end_date")
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := h.eventService.ListEvents(r.Context(), calendar.ID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *CalendarHandler) UpcomingEvents(w http.ResponseWriter, r *http.Request) {
	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := h.eventService.ListUpcoming(r.Context(), calendar.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *CalendarHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	calendar, err := h.calendar(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := h.eventService.ExportICS(r.Context(), calendar)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+calendar.ShareCode+`.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *CalendarHandler) calendar(r *http.Request) (*domain.Calendar, error) {
	return h.membershipService.GetCalendar(r.Context(), chi.URLParam(r, "idOrCode"))
}

func (h *CalendarHandler) writeSummary(w http.ResponseWriter, r *http.Request, status int, calendar *domain.Calendar) {
	summary, err := h.membershipService.Summary(r.Context(), calendar)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, summary)
}

func optionalTimestamp(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		return nil, domain.BadRequest("invalid " + key)
	}
	return &t, nil
}
