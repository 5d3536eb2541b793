package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultReminderMinutes = 15

type Event struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Title           string    `json:"title" gorm:"size:200;not null"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"start_time" gorm:"not null"`
	EndTime         time.Time `json:"end_time" gorm:"not null"`
	AllDay          bool      `json:"all_day" gorm:"not null;default:false"`
	ReminderMinutes int       `json:"reminder_minutes" gorm:"not null"`
	CalendarID      uuid.UUID `json:"calendar_id" gorm:"type:uuid;not null;index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Relations
	Calendar *Calendar `json:"-" gorm:"foreignKey:CalendarID"`
}

// ReminderTime returns when the event's reminder should fire, and false when
// reminders are disabled for the event.
func (e *Event) ReminderTime() (time.Time, bool) {
	if e.ReminderMinutes <= 0 {
		return time.Time{}, false
	}
	return e.StartTime.Add(-time.Duration(e.ReminderMinutes) * time.Minute), true
}

// Reminder is the pending notification for an event. Sent only ever goes
// from false to true.
type Reminder struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventID      uuid.UUID `json:"event_id" gorm:"type:uuid;not null;uniqueIndex"`
	ReminderTime time.Time `json:"reminder_time" gorm:"not null"`
	Sent         bool      `json:"sent" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`

	// Relations
	Event *Event `json:"-" gorm:"foreignKey:EventID"`
}
