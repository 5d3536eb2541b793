package reminder_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dom/shared-calendar/internal/reminder"
	"github.com/dom/shared-calendar/internal/repository/postgres"
	"github.com/dom/shared-calendar/internal/testutil"
	"github.com/dom/shared-calendar/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	shareCode string
	msgType   websocket.MessageType
	payload   websocket.ReminderDuePayload
}

type recordingPublisher struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (p *recordingPublisher) Publish(shareCode string, msgType websocket.MessageType, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	due, _ := payload.(websocket.ReminderDuePayload)
	p.deliveries = append(p.deliveries, delivery{shareCode: shareCode, msgType: msgType, payload: due})
}

func (p *recordingPublisher) snapshot() []delivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]delivery(nil), p.deliveries...)
}

func TestDispatcher_DispatchDue(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	calendar := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)

	now := time.Now().UTC()
	due := testutil.NewEventBuilder(calendar).WithTitle("soon").StartingAt(now.Add(5 * time.Minute)).Build(t, testDB.DB)
	testutil.NewEventBuilder(calendar).WithTitle("later").StartingAt(now.Add(2 * time.Hour)).Build(t, testDB.DB)
	testutil.NewEventBuilder(calendar).WithTitle("already sent").StartingAt(now.Add(time.Minute)).WithSentReminder().Build(t, testDB.DB)

	publisher := &recordingPublisher{}
	dispatcher := reminder.NewDispatcher(repos.Reminder, publisher, time.Hour, zerolog.Nop())

	count, err := dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deliveries := publisher.snapshot()
	require.Len(t, deliveries, 1)
	assert.Equal(t, calendar.ShareCode, deliveries[0].shareCode)
	assert.Equal(t, websocket.MessageTypeReminderDue, deliveries[0].msgType)
	require.NotNil(t, deliveries[0].payload.Event)
	assert.Equal(t, due.ID, deliveries[0].payload.Event.ID)
	assert.True(t, deliveries[0].payload.Reminder.Sent)

	stored, err := repos.Reminder.GetByEventID(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, stored.Sent)

	t.Run("second pass delivers nothing", func(t *testing.T) {
		count, err := dispatcher.DispatchDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Len(t, publisher.snapshot(), 1)
	})
}

func TestDispatcher_ConcurrentDispatchersDeliverOnce(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	calendar := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)

	now := time.Now().UTC()
	const events = 10
	for i := 0; i < events; i++ {
		testutil.NewEventBuilder(calendar).StartingAt(now.Add(time.Duration(i+1) * time.Minute)).Build(t, testDB.DB)
	}

	publisher := &recordingPublisher{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := reminder.NewDispatcher(repos.Reminder, publisher, time.Hour, zerolog.Nop())
			_, err := d.DispatchDue(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	deliveries := publisher.snapshot()
	assert.Len(t, deliveries, events)

	seen := map[string]bool{}
	for _, d := range deliveries {
		id := d.payload.Reminder.ID.String()
		assert.False(t, seen[id], "reminder %s delivered twice", id)
		seen[id] = true
	}
}

func TestDispatcher_StartStopsOnCancel(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	calendar := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)
	testutil.NewEventBuilder(calendar).StartingAt(time.Now().UTC().Add(time.Minute)).Build(t, testDB.DB)

	publisher := &recordingPublisher{}
	dispatcher := reminder.NewDispatcher(repos.Reminder, publisher, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(publisher.snapshot()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
