package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dom/shared-calendar/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHandler_CRUD(t *testing.T) {
	ts := testutil.NewTestServer(t)
	db := ts.DB.DB

	owner := testutil.NewUserBuilder().Build(t, db)
	token := tokenFor(t, ts, owner)
	calendar := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, db)

	start := time.Now().UTC().Add(4 * time.Hour).Truncate(time.Second)

	createTests := []struct {
		name           string
		token          string
		body           map[string]interface{}
		expectedStatus int
	}{
		{
			name:           "requires auth",
			body:           map[string]interface{}{"calendar_id": calendar.ID, "title": "x", "start_time": start, "end_time": start},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing title",
			token:          token,
			body:           map[string]interface{}{"calendar_id": calendar.ID, "start_time": start, "end_time": start},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad timestamp",
			token:          token,
			body:           map[string]interface{}{"calendar_id": calendar.ID, "title": "x", "start_time": "tomorrow", "end_time": start},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "end before start",
			token:          token,
			body:           map[string]interface{}{"calendar_id": calendar.ID, "title": "x", "start_time": start, "end_time": start.Add(-time.Hour)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative reminder",
			token:          token,
			body:           map[string]interface{}{"calendar_id": calendar.ID, "title": "x", "start_time": start, "end_time": start, "reminder_minutes": -1},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown calendar",
			token:          token,
			body:           map[string]interface{}{"calendar_id": uuid.New(), "title": "x", "start_time": start, "end_time": start},
			expectedStatus: http.StatusNotFound,
		},
	}
	for _, tt := range createTests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.APIURL("/events"), tt.body, tt.token)
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
		})
	}

	resp := do(t, http.MethodPost, ts.APIURL("/events"), map[string]interface{}{
		"calendar_id":      calendar.ID,
		"title":            "Review",
		"description":      "quarterly",
		"start_time":       start.Format("2006-01-02T15:04"),
		"end_time":         start.Add(time.Hour).Format(time.RFC3339),
		"reminder_minutes": 30,
	}, token)
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	var created EventResponse
	testutil.AssertJSONResponse(t, resp, &created)
	assert.Equal(t, "Review", created.Title)
	assert.Equal(t, 30, created.ReminderMinutes)
	require.NotNil(t, created.Reminder)
	assert.False(t, created.Reminder.Sent)

	t.Run("get", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.APIURL("/events/"+created.ID), nil, "")
		testutil.AssertStatusCode(t, resp, http.StatusOK)
		var got EventResponse
		testutil.AssertJSONResponse(t, resp, &got)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("partial update", func(t *testing.T) {
		resp := do(t, http.MethodPut, ts.APIURL("/events/"+created.ID), map[string]interface{}{
			"title":            "Review (moved)",
			"reminder_minutes": 0,
		}, token)
		testutil.AssertStatusCode(t, resp, http.StatusOK)
		var updated EventResponse
		testutil.AssertJSONResponse(t, resp, &updated)
		assert.Equal(t, "Review (moved)", updated.Title)
		createdStart, err := time.Parse(time.RFC3339Nano, created.StartTime)
		require.NoError(t, err)
		updatedStart, err := time.Parse(time.RFC3339Nano, updated.StartTime)
		require.NoError(t, err)
		assert.True(t, createdStart.Equal(updatedStart))
		assert.Nil(t, updated.Reminder)
	})

	t.Run("update requires auth", func(t *testing.T) {
		resp := do(t, http.MethodPut, ts.APIURL("/events/"+created.ID), map[string]string{"title": "x"}, "")
		testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
	})

	t.Run("delete", func(t *testing.T) {
		resp := do(t, http.MethodDelete, ts.APIURL("/events/"+created.ID), nil, token)
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		resp = do(t, http.MethodGet, ts.APIURL("/events/"+created.ID), nil, "")
		testutil.AssertErrorResponse(t, resp, http.StatusNotFound, "not_found")
	})

	t.Run("malformed id", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.APIURL("/events/not-a-uuid"), nil, "")
		testutil.AssertErrorResponse(t, resp, http.StatusNotFound, "not_found")
	})
}

func TestEventHandler_UpcomingAcrossCalendars(t *testing.T) {
	ts := testutil.NewTestServer(t)
	db := ts.DB.DB

	owner := testutil.NewUserBuilder().Build(t, db)
	first := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, db)
	second := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, db)

	now := time.Now().UTC()
	testutil.NewEventBuilder(first).StartingAt(now.Add(time.Hour)).Build(t, db)
	testutil.NewEventBuilder(second).StartingAt(now.Add(20 * time.Hour)).Build(t, db)
	testutil.NewEventBuilder(second).StartingAt(now.Add(30 * time.Hour)).Build(t, db)
	testutil.NewEventBuilder(first).StartingAt(now.Add(-time.Hour)).Build(t, db)

	resp := do(t, http.MethodGet, ts.APIURL("/events/upcoming"), nil, "")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var events []EventResponse
	testutil.AssertJSONResponse(t, resp, &events)
	assert.Len(t, events, 2)
}
