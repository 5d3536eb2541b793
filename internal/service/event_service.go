package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/repository"
	"github.com/dom/shared-calendar/internal/websocket"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	upcomingEventsLimit   = 5
	maxEventTitleLength   = 200
	DefaultUpcomingWindow = 24 * time.Hour
	icsProductID          = "-//Shared Calendar//EN"
)

type EventService struct {
	repos       *repository.Repositories
	broadcaster Broadcaster
	now         func() time.Time
}

func NewEventService(repos *repository.Repositories, broadcaster Broadcaster) *EventService {
	return &EventService{
		repos:       repos,
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type CreateEventInput struct {
	CalendarID      uuid.UUID
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	AllDay          bool
	ReminderMinutes *int
}

// UpdateEventInput carries only the fields the caller supplied.
type UpdateEventInput struct {
	Title           *string
	Description     *string
	StartTime       *time.Time
	EndTime         *time.Time
	AllDay          *bool
	ReminderMinutes *int
}

type EventDeletedPayload struct {
	EventID    uuid.UUID `json:"event_id"`
	CalendarID uuid.UUID `json:"calendar_id"`
}

func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*domain.Event, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	minutes := domain.DefaultReminderMinutes
	if input.ReminderMinutes != nil {
		minutes = *input.ReminderMinutes
	}
	if minutes < 0 {
		return nil, domain.ErrNegativeReminderMinute
	}
	if input.StartTime.IsZero() || input.EndTime.IsZero() {
		return nil, domain.BadRequest("start_time and end_time are required")
	}
	if input.EndTime.Before(input.StartTime) {
		return nil, domain.ErrEndBeforeStart
	}

	calendar, err := s.repos.Calendar.GetByID(ctx, input.CalendarID)
	if err != nil {
		return nil, lookupErr(err, domain.ErrCalendarNotFound, "load calendar")
	}

	now := s.now()
	event := &domain.Event{
		ID:              uuid.New(),
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		StartTime:       input.StartTime.UTC(),
		EndTime:         input.EndTime.UTC(),
		AllDay:          input.AllDay,
		ReminderMinutes: minutes,
		CalendarID:      calendar.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		if err := repos.Event.Create(ctx, event); err != nil {
			return writeErr(err, "create event")
		}
		return syncReminder(ctx, repos.Reminder, event)
	})
	if err != nil {
		return nil, err
	}

	s.publish(calendar.ShareCode, websocket.MessageTypeEventCreated, event)
	return event, nil
}

func (s *EventService) UpdateEvent(ctx context.Context, eventID uuid.UUID, input UpdateEventInput) (*domain.Event, error) {
	event, err := s.repos.Event.GetByID(ctx, eventID)
	if err != nil {
		return nil, lookupErr(err, domain.ErrEventNotFound, "load event")
	}

	if input.Title != nil {
		title, err := normalizeTitle(*input.Title)
		if err != nil {
			return nil, err
		}
		event.Title = title
	}
	if input.Description != nil {
		event.Description = strings.TrimSpace(*input.Description)
	}
	if input.StartTime != nil {
		event.StartTime = input.StartTime.UTC()
	}
	if input.EndTime != nil {
		event.EndTime = input.EndTime.UTC()
	}
	if input.AllDay != nil {
		event.AllDay = *input.AllDay
	}
	if input.ReminderMinutes != nil {
		if *input.ReminderMinutes < 0 {
			return nil, domain.ErrNegativeReminderMinute
		}
		event.ReminderMinutes = *input.ReminderMinutes
	}
	if event.EndTime.Before(event.StartTime) {
		return nil, domain.ErrEndBeforeStart
	}
	event.UpdatedAt = s.now()

	recompute := input.StartTime != nil || input.ReminderMinutes != nil
	err = s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		if err := repos.Event.Update(ctx, event); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrEventNotFound
			}
			return writeErr(err, "update event")
		}
		if !recompute {
			return nil
		}
		return syncReminder(ctx, repos.Reminder, event)
	})
	if err != nil {
		return nil, err
	}

	if event.Calendar != nil {
		s.publish(event.Calendar.ShareCode, websocket.MessageTypeEventUpdated, event)
	}
	return event, nil
}

func (s *EventService) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	event, err := s.repos.Event.GetByID(ctx, eventID)
	if err != nil {
		return lookupErr(err, domain.ErrEventNotFound, "load event")
	}

	err = s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		if err := repos.Reminder.DeleteByEventID(ctx, event.ID); err != nil {
			return domain.Internal("delete reminder", err)
		}
		if err := repos.Event.Delete(ctx, event.ID); err != nil {
			return domain.Internal("delete event", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if event.Calendar != nil {
		s.publish(event.Calendar.ShareCode, websocket.MessageTypeEventDeleted, EventDeletedPayload{
			EventID:    event.ID,
			CalendarID: event.CalendarID,
		})
	}
	return nil
}

func (s *EventService) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	event, err := s.repos.Event.GetByID(ctx, eventID)
	if err != nil {
		return nil, lookupErr(err, domain.ErrEventNotFound, "load event")
	}
	return event, nil
}

// GetReminder returns the event's reminder, or nil when reminders are off.
func (s *EventService) GetReminder(ctx context.Context, eventID uuid.UUID) (*domain.Reminder, error) {
	reminder, err := s.repos.Reminder.GetByEventID(ctx, eventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal("load reminder", err)
	}
	return reminder, nil
}

// ListUpcoming returns the next events of a calendar that start at or after
// now.
func (s *EventService) ListUpcoming(ctx context.Context, calendarID uuid.UUID) ([]*domain.Event, error) {
	if err := s.ensureCalendar(ctx, calendarID); err != nil {
		return nil, err
	}
	events, err := s.repos.Event.ListUpcoming(ctx, calendarID, s.now(), upcomingEventsLimit)
	if err != nil {
		return nil, domain.Internal("list upcoming events", err)
	}
	return nonNil(events), nil
}

// ListEvents returns the calendar's events that overlap the optional
// [from, to] window, ordered by start.
func (s *EventService) ListEvents(ctx context.Context, calendarID uuid.UUID, from, to *time.Time) ([]*domain.Event, error) {
	if err := s.ensureCalendar(ctx, calendarID); err != nil {
		return nil, err
	}
	events, err := s.repos.Event.ListInRange(ctx, calendarID, from, to)
	if err != nil {
		return nil, domain.Internal("list events", err)
	}
	return nonNil(events), nil
}

// ListUpcomingAcrossAllCalendars returns events of every calendar that start
// within window of now.
func (s *EventService) ListUpcomingAcrossAllCalendars(ctx context.Context, window time.Duration) ([]*domain.Event, error) {
	if window <= 0 {
		window = DefaultUpcomingWindow
	}
	now := s.now()
	events, err := s.repos.Event.ListStartingBetween(ctx, now, now.Add(window))
	if err != nil {
		return nil, domain.Internal("list upcoming events", err)
	}
	return nonNil(events), nil
}

// ExportICS renders the calendar's events as an iCalendar feed, with one
// display alarm per active reminder.
func (s *EventService) ExportICS(ctx context.Context, calendar *domain.Calendar) ([]byte, error) {
	events, err := s.repos.Event.ListInRange(ctx, calendar.ID, nil, nil)
	if err != nil {
		return nil, domain.Internal("list events", err)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, icsProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropName, calendar.Name)

	stamp := s.now()
	for _, e := range events {
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, e.ID.String())
		event.Props.SetText(ical.PropSummary, e.Title)
		if e.Description != "" {
			event.Props.SetText(ical.PropDescription, e.Description)
		}
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		event.Props.SetDateTime(ical.PropLastModified, e.UpdatedAt.UTC())
		if e.AllDay {
			event.Props.SetDate(ical.PropDateTimeStart, e.StartTime)
			event.Props.SetDate(ical.PropDateTimeEnd, e.EndTime.AddDate(0, 0, 1))
		} else {
			event.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime)
			event.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime)
		}

		if e.ReminderMinutes > 0 {
			alarm := ical.NewComponent(ical.CompAlarm)
			alarm.Props.SetText(ical.PropAction, "DISPLAY")
			alarm.Props.SetText(ical.PropDescription, e.Title)
			trigger := ical.NewProp(ical.PropTrigger)
			trigger.Value = fmt.Sprintf("-PT%dM", e.ReminderMinutes)
			alarm.Props.Set(trigger)
			event.Children = append(event.Children, alarm)
		}

		cal.Children = append(cal.Children, event.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, domain.Internal("encode calendar", err)
	}
	return buf.Bytes(), nil
}

func (s *EventService) ensureCalendar(ctx context.Context, calendarID uuid.UUID) error {
	if _, err := s.repos.Calendar.GetByID(ctx, calendarID); err != nil {
		return lookupErr(err, domain.ErrCalendarNotFound, "load calendar")
	}
	return nil
}

func (s *EventService) publish(shareCode string, msgType websocket.MessageType, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(shareCode, msgType, payload)
}

// syncReminder brings the event's reminder in line with its start time and
// lead time. A reminder that already fired is replaced rather than re-armed
// so its sent flag never goes back to false.
func syncReminder(ctx context.Context, reminders repository.ReminderRepository, event *domain.Event) error {
	existing, err := reminders.GetByEventID(ctx, event.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Internal("load reminder", err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		existing = nil
	}

	at, enabled := event.ReminderTime()
	switch {
	case !enabled:
		if existing == nil {
			return nil
		}
		if err := reminders.Delete(ctx, existing.ID); err != nil {
			return domain.Internal("delete reminder", err)
		}
		return nil

	case existing != nil && existing.ReminderTime.Equal(at):
		return nil

	case existing != nil && !existing.Sent:
		existing.ReminderTime = at
		if err := reminders.Update(ctx, existing); err != nil {
			return domain.Internal("update reminder", err)
		}
		return nil

	case existing != nil:
		if err := reminders.Delete(ctx, existing.ID); err != nil {
			return domain.Internal("replace reminder", err)
		}
	}

	reminder := &domain.Reminder{
		ID:           uuid.New(),
		EventID:      event.ID,
		ReminderTime: at,
		CreatedAt:    time.Now().UTC(),
	}
	if err := reminders.Create(ctx, reminder); err != nil {
		return domain.Internal("create reminder", err)
	}
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.BadRequest("title is required")
	}
	if utf8.RuneCountInString(title) > maxEventTitleLength {
		return "", domain.BadRequest("title must be at most 200 characters")
	}
	return title, nil
}

func nonNil(events []*domain.Event) []*domain.Event {
	if events == nil {
		return []*domain.Event{}
	}
	return events
}
