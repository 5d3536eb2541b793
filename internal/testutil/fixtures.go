package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	username string
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{
		username: fmt.Sprintf("user_%s", uuid.New().String()[:8]),
	}
}

// WithUsername sets the username
func (b *UserBuilder) WithUsername(name string) *UserBuilder {
	b.username = name
	return b
}

// Build creates the user in the database
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) *domain.User {
	t.Helper()

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     b.username,
		SessionToken: uuid.New().String(),
		CreatedAt:    now,
		LastActive:   now,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user
}

// AuthResponse matches the API identity response
type AuthResponse struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	AccessToken string `json:"access_token"`
}

// BuildAndAuthenticate registers the user via API and returns the user and access token
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": b.username})

	resp, err := http.Post(ts.APIURL("/user/register"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	userID, _ := uuid.Parse(authResp.User.ID)
	user := &domain.User{
		ID:       userID,
		Username: authResp.User.Username,
	}

	return user, authResp.AccessToken
}

// CalendarBuilder creates test calendars with an owner and members
type CalendarBuilder struct {
	name      string
	shareCode string
	owner     *domain.User
	members   []*domain.User
}

// NewCalendarBuilder creates a new CalendarBuilder with default values
func NewCalendarBuilder() *CalendarBuilder {
	return &CalendarBuilder{
		name: "Test Calendar",
	}
}

// WithName sets the calendar name
func (b *CalendarBuilder) WithName(name string) *CalendarBuilder {
	b.name = name
	return b
}

// WithShareCode sets a fixed share code
func (b *CalendarBuilder) WithShareCode(code string) *CalendarBuilder {
	b.shareCode = code
	return b
}

// WithOwner sets the owning user
func (b *CalendarBuilder) WithOwner(user *domain.User) *CalendarBuilder {
	b.owner = user
	return b
}

// WithMembers adds non-owner members, joined one second apart in order
func (b *CalendarBuilder) WithMembers(users ...*domain.User) *CalendarBuilder {
	b.members = append(b.members, users...)
	return b
}

// Build creates the calendar and its memberships in the database
func (b *CalendarBuilder) Build(t *testing.T, db *gorm.DB) *domain.Calendar {
	t.Helper()

	code := b.shareCode
	if code == "" {
		code = generateShareCode()
	}

	created := time.Now().UTC().Add(-time.Hour)
	calendar := &domain.Calendar{
		ID:        uuid.New(),
		Name:      b.name,
		ShareCode: code,
		CreatedAt: created,
	}
	if err := db.Create(calendar).Error; err != nil {
		t.Fatalf("failed to create calendar: %v", err)
	}

	joined := created
	if b.owner != nil {
		createMembership(t, db, calendar.ID, b.owner.ID, true, joined)
	}
	for _, m := range b.members {
		joined = joined.Add(time.Second)
		createMembership(t, db, calendar.ID, m.ID, false, joined)
	}

	return calendar
}

func createMembership(t *testing.T, db *gorm.DB, calendarID, userID uuid.UUID, owner bool, joinedAt time.Time) {
	t.Helper()

	m := &domain.Membership{
		ID:         uuid.New(),
		UserID:     userID,
		CalendarID: calendarID,
		IsOwner:    owner,
		JoinedAt:   joinedAt,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("failed to create membership: %v", err)
	}
}

func generateShareCode() string {
	raw := uuid.New().String()
	code := make([]byte, 0, domain.DefaultShareCodeLength)
	for i := 0; len(code) < domain.DefaultShareCodeLength && i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'f':
			code = append(code, c-'a'+'A')
		case c >= '0' && c <= '9':
			code = append(code, c)
		}
	}
	return string(code)
}

// EventBuilder creates test events, with a reminder when the lead time is positive
type EventBuilder struct {
	calendar        *domain.Calendar
	title           string
	start           time.Time
	duration        time.Duration
	reminderMinutes int
	sent            bool
}

// NewEventBuilder creates a new EventBuilder starting in one hour
func NewEventBuilder(calendar *domain.Calendar) *EventBuilder {
	return &EventBuilder{
		calendar:        calendar,
		title:           "Test Event",
		start:           time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		duration:        time.Hour,
		reminderMinutes: domain.DefaultReminderMinutes,
	}
}

// WithTitle sets the event title
func (b *EventBuilder) WithTitle(title string) *EventBuilder {
	b.title = title
	return b
}

// StartingAt sets the event start
func (b *EventBuilder) StartingAt(start time.Time) *EventBuilder {
	b.start = start.UTC()
	return b
}

// WithReminderMinutes sets the reminder lead time
func (b *EventBuilder) WithReminderMinutes(minutes int) *EventBuilder {
	b.reminderMinutes = minutes
	return b
}

// WithSentReminder marks the reminder as already delivered
func (b *EventBuilder) WithSentReminder() *EventBuilder {
	b.sent = true
	return b
}

// Build creates the event and its reminder in the database
func (b *EventBuilder) Build(t *testing.T, db *gorm.DB) *domain.Event {
	t.Helper()

	now := time.Now().UTC()
	event := &domain.Event{
		ID:              uuid.New(),
		Title:           b.title,
		StartTime:       b.start,
		EndTime:         b.start.Add(b.duration),
		ReminderMinutes: b.reminderMinutes,
		CalendarID:      b.calendar.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.Omit("Calendar").Create(event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if at, ok := event.ReminderTime(); ok {
		reminder := &domain.Reminder{
			ID:           uuid.New(),
			EventID:      event.ID,
			ReminderTime: at,
			Sent:         b.sent,
			CreatedAt:    now,
		}
		if err := db.Omit("Event").Create(reminder).Error; err != nil {
			t.Fatalf("failed to create reminder: %v", err)
		}
	}

	return event
}

// CreateAuthenticatedRequest creates an HTTP request with auth header
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}
