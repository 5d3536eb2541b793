package websocket

import (
	"encoding/json"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
)

type MessageType string

const (
	// Client to Server
	MessageTypeJoinCalendar  MessageType = "join_calendar"
	MessageTypeLeaveCalendar MessageType = "leave_calendar"

	// Server to Client
	MessageTypeJoinedCalendar MessageType = "joined_calendar"
	MessageTypeLeftCalendar   MessageType = "left_calendar"
	MessageTypeEventCreated   MessageType = "event_created"
	MessageTypeEventUpdated   MessageType = "event_updated"
	MessageTypeEventDeleted   MessageType = "event_deleted"
	MessageTypeReminderDue    MessageType = "reminder_due"
	MessageTypeError          MessageType = "error"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Seq       int             `json:"seq,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Client to Server payloads

type CalendarPayload struct {
	ShareCode string `json:"share_code"`
}

// Server to Client payloads

type JoinedCalendarPayload struct {
	Calendar *domain.CalendarSummary `json:"calendar"`
}

type LeftCalendarPayload struct {
	ShareCode string `json:"share_code"`
}

type ReminderDuePayload struct {
	Event    *domain.Event    `json:"event"`
	Reminder *domain.Reminder `json:"reminder"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
