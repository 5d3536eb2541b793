package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dom/shared-calendar/internal/reminder"
	"github.com/dom/shared-calendar/internal/service"
	"github.com/dom/shared-calendar/internal/testutil"
	"github.com/dom/shared-calendar/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wsTimeout = 2 * time.Second

func TestWebSocket_RequiresAuthentication(t *testing.T) {
	ts := testutil.NewTestServer(t)

	for _, token := range []string{"", "garbage"} {
		_, resp, err := gorillaWS.DefaultDialer.Dial(ts.WebSocketURL(token), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestWebSocket_CalendarBroadcasts(t *testing.T) {
	ts := testutil.NewTestServer(t)
	db := ts.DB.DB

	owner := testutil.NewUserBuilder().WithUsername("owner").Build(t, db)
	member := testutil.NewUserBuilder().WithUsername("member").Build(t, db)
	outsider := testutil.NewUserBuilder().WithUsername("outsider").Build(t, db)
	calendar := testutil.NewCalendarBuilder().WithName("Shared").WithOwner(owner).WithMembers(member).Build(t, db)
	other := testutil.NewCalendarBuilder().WithOwner(outsider).Build(t, db)

	ownerWS := testutil.NewWSClient(t, ts.WebSocketURL(tokenFor(t, ts, owner)))
	memberWS := testutil.NewWSClient(t, ts.WebSocketURL(tokenFor(t, ts, member)))
	outsiderWS := testutil.NewWSClient(t, ts.WebSocketURL(tokenFor(t, ts, outsider)))

	ownerWS.JoinCalendar(calendar.ShareCode)
	joined := ownerWS.ExpectJoined(wsTimeout)
	require.NotNil(t, joined.Calendar)
	assert.Equal(t, "Shared", joined.Calendar.Name)
	assert.Equal(t, []string{"owner", "member"}, joined.Calendar.MemberNames)

	memberWS.JoinCalendar(calendar.ShareCode)
	memberWS.ExpectJoined(wsTimeout)
	outsiderWS.JoinCalendar(other.ShareCode)
	outsiderWS.ExpectJoined(wsTimeout)

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	resp := do(t, http.MethodPost, ts.APIURL("/events"), map[string]interface{}{
		"calendar_id": calendar.ID,
		"title":       "Picnic",
		"start_time":  start,
		"end_time":    start.Add(time.Hour),
	}, tokenFor(t, ts, owner))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	var created EventResponse
	testutil.AssertJSONResponse(t, resp, &created)

	for _, client := range []*testutil.WSClient{ownerWS, memberWS} {
		msg := client.ExpectMessage(websocket.MessageTypeEventCreated, wsTimeout)
		var event EventResponse
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, created.ID, event.ID)
		assert.Equal(t, "Picnic", event.Title)
	}
	outsiderWS.ExpectNoMessage(200 * time.Millisecond)

	t.Run("updates and deletes arrive in order", func(t *testing.T) {
		resp := do(t, http.MethodPut, ts.APIURL("/events/"+created.ID), map[string]string{"title": "Picnic 2"}, tokenFor(t, ts, member))
		testutil.AssertStatusCode(t, resp, http.StatusOK)
		resp = do(t, http.MethodDelete, ts.APIURL("/events/"+created.ID), nil, tokenFor(t, ts, member))
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		messages := memberWS.WaitForMessageCount(2, wsTimeout)
		assert.Equal(t, websocket.MessageTypeEventUpdated, messages[0].Type)
		assert.Equal(t, websocket.MessageTypeEventDeleted, messages[1].Type)
		assert.Less(t, messages[0].Seq, messages[1].Seq)

		var deleted service.EventDeletedPayload
		require.NoError(t, json.Unmarshal(messages[1].Payload, &deleted))
		assert.Equal(t, created.ID, deleted.EventID.String())

		ownerWS.DrainMessages()
	})

	t.Run("leave stops delivery", func(t *testing.T) {
		memberWS.LeaveCalendar(calendar.ShareCode)
		memberWS.ExpectMessage(websocket.MessageTypeLeftCalendar, wsTimeout)

		resp := do(t, http.MethodPost, ts.APIURL("/events"), map[string]interface{}{
			"calendar_id": calendar.ID,
			"title":       "After leave",
			"start_time":  start,
			"end_time":    start,
		}, tokenFor(t, ts, owner))
		testutil.AssertStatusCode(t, resp, http.StatusCreated)

		ownerWS.ExpectMessage(websocket.MessageTypeEventCreated, wsTimeout)
		memberWS.ExpectNoMessage(200 * time.Millisecond)
	})
}

func TestWebSocket_ProtocolErrors(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user := testutil.NewUserBuilder().Build(t, ts.DB.DB)
	client := testutil.NewWSClient(t, ts.WebSocketURL(tokenFor(t, ts, user)))

	t.Run("unknown share code is ignored", func(t *testing.T) {
		client.JoinCalendar("NOSUCHCODE")
		client.ExpectNoMessage(200 * time.Millisecond)
	})

	t.Run("unknown message type", func(t *testing.T) {
		client.Send(websocket.MessageType("dance"), map[string]string{})
		errPayload := client.ExpectError(wsTimeout)
		assert.Equal(t, "unknown_type", errPayload.Code)
	})
}

func TestWebSocket_ReminderDelivery(t *testing.T) {
	ts := testutil.NewTestServer(t)
	db := ts.DB.DB

	owner := testutil.NewUserBuilder().Build(t, db)
	calendar := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, db)
	event := testutil.NewEventBuilder(calendar).WithTitle("Call mom").StartingAt(time.Now().UTC().Add(5 * time.Minute)).Build(t, db)

	client := testutil.NewWSClient(t, ts.WebSocketURL(tokenFor(t, ts, owner)))
	client.JoinCalendar(calendar.ShareCode)
	client.ExpectJoined(wsTimeout)

	dispatcher := reminder.NewDispatcher(ts.Repos.Reminder, ts.Hub, time.Hour, zerolog.Nop())
	count, err := dispatcher.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	msg := client.ExpectMessage(websocket.MessageTypeReminderDue, wsTimeout)
	var payload struct {
		Event struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"event"`
		Reminder struct {
			Sent bool `json:"sent"`
		} `json:"reminder"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, event.ID.String(), payload.Event.ID)
	assert.Equal(t, "Call mom", payload.Event.Title)
	assert.True(t, payload.Reminder.Sent)
}
