package handlers_test

import (
	"net/http"
	"testing"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/testutil"
	"github.com/stretchr/testify/require"
)

type CalendarResponse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	ShareCode         string   `json:"share_code"`
	EventsCount       int64    `json:"events_count"`
	MembersCount      int64    `json:"members_count"`
	MemberNames       []string `json:"member_names"`
	RecentEventTitles []string `json:"recent_event_titles"`
	IsOwner           bool     `json:"is_owner"`
}

type MemberResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsOwner  bool   `json:"is_owner"`
}

type EventResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CalendarID      string `json:"calendar_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	AllDay          bool   `json:"all_day"`
	ReminderMinutes int    `json:"reminder_minutes"`
	Reminder        *struct {
		ID           string `json:"id"`
		ReminderTime string `json:"reminder_time"`
		Sent         bool   `json:"sent"`
	} `json:"reminder"`
}

// do sends a JSON request, authenticated when token is set.
func do(t *testing.T, method, url string, body interface{}, token string) *http.Response {
	t.Helper()

	req := testutil.CreateAuthenticatedRequest(t, method, url, body, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// tokenFor issues a bearer token for a user created directly in the database.
func tokenFor(t *testing.T, ts *testutil.TestServer, user *domain.User) string {
	t.Helper()

	token, err := ts.Services.User.IssueToken(user)
	require.NoError(t, err)
	return token
}
