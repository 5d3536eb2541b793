package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/shared-calendar/internal/repository/postgres"
	"github.com/dom/shared-calendar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEventRepository_Listing(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	cal := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)
	other := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)

	now := time.Now().UTC().Truncate(time.Second)
	testutil.NewEventBuilder(cal).WithTitle("past").StartingAt(now.Add(-2 * time.Hour)).Build(t, testDB.DB)
	for i := 1; i <= 6; i++ {
		testutil.NewEventBuilder(cal).
			WithTitle("future").
			StartingAt(now.Add(time.Duration(i) * 6 * time.Hour)).
			Build(t, testDB.DB)
	}
	testutil.NewEventBuilder(other).WithTitle("elsewhere").StartingAt(now.Add(time.Hour)).Build(t, testDB.DB)

	t.Run("upcoming is limited and ordered", func(t *testing.T) {
		events, err := repos.Event.ListUpcoming(ctx, cal.ID, now, 5)
		require.NoError(t, err)
		require.Len(t, events, 5)
		for i := 1; i < len(events); i++ {
			assert.True(t, events[i-1].StartTime.Before(events[i].StartTime))
		}
		assert.True(t, events[0].StartTime.After(now))
	})

	t.Run("range with open bounds", func(t *testing.T) {
		all, err := repos.Event.ListInRange(ctx, cal.ID, nil, nil)
		require.NoError(t, err)
		assert.Len(t, all, 7)

		from := now
		to := now.Add(13 * time.Hour)
		window, err := repos.Event.ListInRange(ctx, cal.ID, &from, &to)
		require.NoError(t, err)
		assert.Len(t, window, 2)
	})

	t.Run("starting between spans calendars", func(t *testing.T) {
		events, err := repos.Event.ListStartingBetween(ctx, now, now.Add(24*time.Hour))
		require.NoError(t, err)
		titles := make([]string, 0, len(events))
		for _, e := range events {
			titles = append(titles, e.Title)
		}
		assert.Contains(t, titles, "elsewhere")
		assert.NotContains(t, titles, "past")
		assert.Len(t, events, 5)
	})

	t.Run("get preloads calendar", func(t *testing.T) {
		event := testutil.NewEventBuilder(cal).Build(t, testDB.DB)
		found, err := repos.Event.GetByID(ctx, event.ID)
		require.NoError(t, err)
		require.NotNil(t, found.Calendar)
		assert.Equal(t, cal.ShareCode, found.Calendar.ShareCode)
	})
}

func TestEventRepository_UpdateMissingEvent(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	cal := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)
	event := testutil.NewEventBuilder(cal).WithTitle("before").Build(t, testDB.DB)

	t.Run("updates existing row", func(t *testing.T) {
		event.Title = "after"
		require.NoError(t, repos.Event.Update(ctx, event))

		found, err := repos.Event.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, "after", found.Title)
	})

	t.Run("deleted row is not recreated", func(t *testing.T) {
		require.NoError(t, repos.Reminder.DeleteByEventID(ctx, event.ID))
		require.NoError(t, repos.Event.Delete(ctx, event.ID))

		event.Title = "resurrected"
		err := repos.Event.Update(ctx, event)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		_, err = repos.Event.GetByID(ctx, event.ID)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}
