package handlers

import (
	"net/http"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type EventHandler struct {
	eventService *service.EventService
}

func NewEventHandler(eventService *service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

type CreateEventRequest struct {
	CalendarID      string `json:"calendar_id" validate:"required,uuid"`
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description"`
	StartTime       string `json:"start_time" validate:"required"`
	EndTime         string `json:"end_time" validate:"required"`
	AllDay          bool   `json:"all_day"`
	ReminderMinutes *int   `json:"reminder_minutes"`
}

// UpdateEventRequest leaves absent fields untouched.
type UpdateEventRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	StartTime       *string `json:"start_time"`
	EndTime         *string `json:"end_time"`
	AllDay          *bool   `json:"all_day"`
	ReminderMinutes *int    `json:"reminder_minutes"`
}

// EventResponse is an event plus its reminder, if one exists.
type EventResponse struct {
	*domain.Event
	Reminder *domain.Reminder `json:"reminder,omitempty"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	calendarID, _ := uuid.Parse(req.CalendarID)
	start, err := domain.ParseTimestamp(req.StartTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := domain.ParseTimestamp(req.EndTime)
	if err != nil {
		writeError(w, r, err)
		return
	}

	event, err := h.eventService.CreateEvent(r.Context(), service.CreateEventInput{
		CalendarID:      calendarID,
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       start,
		EndTime:         end,
		AllDay:          req.AllDay,
		ReminderMinutes: req.ReminderMinutes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, event)
}

func (h *EventHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventService.ListUpcomingAcrossAllCalendars(r.Context(), service.DefaultUpcomingWindow)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	event, err := h.eventService.GetEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, event)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req UpdateEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	input := service.UpdateEventInput{
		Title:           req.Title,
		Description:     req.Description,
		AllDay:          req.AllDay,
		ReminderMinutes: req.ReminderMinutes,
	}
	if input.StartTime, err = optionalParse(req.StartTime); err != nil {
		writeError(w, r, err)
		return
	}
	if input.EndTime, err = optionalParse(req.EndTime); err != nil {
		writeError(w, r, err)
		return
	}

	event, err := h.eventService.UpdateEvent(r.Context(), eventID, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, event)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.eventService.DeleteEvent(r.Context(), eventID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "event deleted"})
}

func (h *EventHandler) respond(w http.ResponseWriter, r *http.Request, status int, event *domain.Event) {
	reminder, err := h.eventService.GetReminder(r.Context(), event.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, EventResponse{Event: event, Reminder: reminder})
}

func eventIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ErrEventNotFound
	}
	return id, nil
}

func optionalParse(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := domain.ParseTimestamp(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
